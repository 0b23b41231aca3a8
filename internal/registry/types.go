package registry

import "gopkg.in/yaml.v3"

// Keys of the registry document the updater reads or writes
const (
	keyMetadata      = "metadata"
	keyLastUpdated   = "last_updated"
	keyApps          = "apps"
	keyOfficial      = "official"
	keyName          = "name"
	keyRepo          = "repo"
	keyVersion       = "version"
	keyVersionInfo   = "version_info"
	keyCommitDate    = "commit_date"
	keyCommitMessage = "commit_message"
	keyCommitURL     = "commit_url"
	keyUpdatedAt     = "updated_at"
)

// TimestampLayout is used for last_updated and updated_at (always UTC)
const TimestampLayout = "2006-01-02T15:04:05Z"

// VersionInfo is the metadata recorded alongside a resolved version
type VersionInfo struct {
	CommitDate    string `yaml:"commit_date" json:"commit_date"`
	CommitMessage string `yaml:"commit_message" json:"commit_message"`
	CommitURL     string `yaml:"commit_url" json:"commit_url"`
	UpdatedAt     string `yaml:"updated_at" json:"updated_at"`
}

// Entry is one tracked tool in apps.official.
// It wraps the underlying mapping node so unrelated fields survive a rewrite.
type Entry struct {
	node *yaml.Node
	doc  *Document
}

// Document is the in-memory registry, kept as a YAML node tree
type Document struct {
	root    *yaml.Node // document node
	entries []*Entry
}
