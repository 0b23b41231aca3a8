package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleRegistry = `# UCLI Tools registry
metadata:
  name: UCLI Tools
  last_updated: "2025-01-01"
  maintainer: ucli-tools
apps:
  official:
    - name: gits
      repo: github.com/ucli-tools/gits
      description: Git helper
      version: abc123000000 # pinned
      tags: [git, cli]
    - name: hero
      description: No repo yet
      repo: ""
      version: main
    - name: mdbook
      repo: github.com/ucli-tools/mdbook
      version: 0123456789abcdef0123456789abcdef01234567
      version_info:
        commit_date: 2025-01-01 00:00:00 UTC
        commit_message: Old message
        commit_url: https://github.com/ucli-tools/mdbook/commit/0123456789abcdef0123456789abcdef01234567
        updated_at: "2025-01-01T00:00:00Z"
        reviewed_by: someone
  community: []
`

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry", "apps.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(path string) *Store {
	s := NewStore(path, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestLoad_Entries(t *testing.T) {
	store := newTestStore(writeRegistry(t, sampleRegistry))

	doc, err := store.Load()
	require.NoError(t, err)

	entries := doc.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, "gits", entries[0].Name())
	assert.Equal(t, "github.com/ucli-tools/gits", entries[0].Repo())
	assert.Equal(t, "abc123000000", entries[0].Version())
	assert.Nil(t, entries[0].VersionInfo())

	assert.Equal(t, "", entries[1].Repo())

	info := entries[2].VersionInfo()
	require.NotNil(t, info)
	assert.Equal(t, "Old message", info.CommitMessage)
	assert.Equal(t, "2025-01-01T00:00:00Z", info.UpdatedAt)

	assert.Equal(t, "2025-01-01", doc.LastUpdated())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "invalid yaml", content: ptr("apps: [unclosed")},
		{name: "empty file", content: ptr("")},
		{name: "root is a list", content: ptr("- a\n- b\n")},
		{name: "no apps", content: ptr("metadata: {}\n")},
		{name: "no official list", content: ptr("apps:\n  community: []\n")},
		{name: "official is a mapping", content: ptr("apps:\n  official:\n    gits: {}\n")},
		{name: "entry is a scalar", content: ptr("apps:\n  official:\n    - gits\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "apps.yaml")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o644))
			}

			doc, err := newTestStore(path).Load()
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, ErrDocumentLoad)
		})
	}
}

func TestLoad_EmptyOfficialList(t *testing.T) {
	doc, err := Parse([]byte("apps:\n  official:\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Entries())
}

func TestSave_PreservesStructure(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	store := newTestStore(path)

	doc, err := store.Load()
	require.NoError(t, err)

	gits := doc.Entries()[0]
	gits.SetVersion("def456789012abcdef0")
	gits.SetVersionInfo(VersionInfo{
		CommitDate:    "2025-03-01 09:30:02 UTC",
		CommitMessage: "Add install script",
		CommitURL:     "https://github.com/ucli-tools/gits/commit/def456789012abcdef0",
		UpdatedAt:     "2025-03-01T12:00:00Z",
	})

	require.NoError(t, store.Save(doc, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	// comments survive
	assert.Contains(t, out, "# UCLI Tools registry")
	assert.Contains(t, out, "# pinned")

	// unrelated fields and key order survive
	assertOrder(t, out, "metadata:", "name: UCLI Tools", "last_updated:", "maintainer: ucli-tools", "apps:")
	assertOrder(t, out, "name: gits", "repo: github.com/ucli-tools/gits", "description: Git helper", "version: def456789012abcdef0", "tags:", "version_info:")
	assertOrder(t, out, "commit_date:", "commit_message:", "commit_url:", "updated_at:")
	assert.Contains(t, out, "reviewed_by: someone")
	assert.Contains(t, out, "community: []")

	// block style: the flow list is rewritten
	assert.NotContains(t, out, "[git, cli]")
	assert.Contains(t, out, "- git\n")

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", reloaded.LastUpdated())
	assert.Equal(t, "def456789012abcdef0", reloaded.Entries()[0].Version())
	assert.Equal(t, "Add install script", reloaded.Entries()[0].VersionInfo().CommitMessage)
	// untouched entries keep their version_info
	assert.Equal(t, "Old message", reloaded.Entries()[2].VersionInfo().CommitMessage)
}

func TestSave_UpsertKeepsUnmanagedVersionInfoKeys(t *testing.T) {
	doc, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	mdbook := doc.Entries()[2]
	mdbook.SetVersionInfo(VersionInfo{CommitMessage: "New message"})

	data, err := doc.Marshal()
	require.NoError(t, err)
	assertOrder(t, string(data), "commit_message: New message", "updated_at:", "reviewed_by: someone")
}

func TestSave_DryRunDoesNotWrite(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	store := newTestStore(path)

	doc, err := store.Load()
	require.NoError(t, err)
	doc.Entries()[0].SetVersion("def456789012abcdef0")

	require.NoError(t, store.Save(doc, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRegistry, string(data))

	// the in-memory timestamp is refreshed regardless
	assert.Equal(t, "2025-03-01T12:00:00Z", doc.LastUpdated())
}

func TestSave_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "registry")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	doc, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	store := newTestStore(filepath.Join(blocker, "apps.yaml"))
	err = store.Save(doc, false)
	assert.ErrorIs(t, err, ErrDocumentSave)
}

func TestSave_KeepsFileMode(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	require.NoError(t, os.Chmod(path, 0o640))
	store := newTestStore(path)

	doc, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(doc, false))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestMarshal_Idempotent(t *testing.T) {
	doc, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)
	first, err := doc.Marshal()
	require.NoError(t, err)

	again, err := Parse(first)
	require.NoError(t, err)
	second, err := again.Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSetVersion_QuotesAmbiguousScalars(t *testing.T) {
	doc, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)
	doc.Entries()[0].SetVersion("1234567890")
	doc.Touch(fixedNow)

	data, err := doc.Marshal()
	require.NoError(t, err)

	var plain struct {
		Metadata map[string]any `yaml:"metadata"`
		Apps     struct {
			Official []map[string]any `yaml:"official"`
		} `yaml:"apps"`
	}
	require.NoError(t, yaml.Unmarshal(data, &plain))
	assert.Equal(t, "1234567890", plain.Apps.Official[0]["version"])
	assert.Equal(t, "2025-03-01T12:00:00Z", plain.Metadata["last_updated"])
}

func TestTouch_CreatesMetadata(t *testing.T) {
	doc, err := Parse([]byte("apps:\n  official: []\n"))
	require.NoError(t, err)

	doc.Touch(fixedNow)
	assert.Equal(t, "2025-03-01T12:00:00Z", doc.LastUpdated())

	data, err := doc.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "metadata:\n"), "metadata leads the document:\n%s", data)
}

func assertOrder(t *testing.T, s string, parts ...string) {
	t.Helper()
	last := -1
	for _, p := range parts {
		idx := strings.Index(s, p)
		if !assert.GreaterOrEqual(t, idx, 0, "missing %q in:\n%s", p, s) {
			return
		}
		assert.Greater(t, idx, last, "%q out of order in:\n%s", p, s)
		last = idx
	}
}

func ptr(s string) *string { return &s }

const sharedRegistry = `apps:
  official:
    - name: gits
      repo: github.com/ucli-tools/gits
      version: &pinned abc123000000
      version_info: &info
        commit_message: Old message
        reviewed_by: someone
    - name: hero
      repo: github.com/ucli-tools/hero
      version: *pinned
      version_info: *info
`

func TestSetVersion_SharedNodes(t *testing.T) {
	tests := []struct {
		name    string
		updated int
	}{
		{name: "anchored entry", updated: 0},
		{name: "aliasing entry", updated: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(sharedRegistry))
			require.NoError(t, err)
			for _, e := range doc.Entries() {
				require.Equal(t, "abc123000000", e.Version(), "aliases are followed on read")
				require.Equal(t, "Old message", e.VersionInfo().CommitMessage)
			}

			e := doc.Entries()[tt.updated]
			e.SetVersion("def456789012")
			e.SetVersionInfo(VersionInfo{CommitMessage: "New message"})

			data, err := doc.Marshal()
			require.NoError(t, err)
			reloaded, err := Parse(data)
			require.NoError(t, err, "output must stay valid YAML:\n%s", data)

			other := 1 - tt.updated
			entries := reloaded.Entries()
			assert.Equal(t, "def456789012", entries[tt.updated].Version())
			assert.Equal(t, "New message", entries[tt.updated].VersionInfo().CommitMessage)
			assert.Equal(t, "abc123000000", entries[other].Version())
			assert.Equal(t, "Old message", entries[other].VersionInfo().CommitMessage)
			assert.Contains(t, string(data), "reviewed_by: someone")
		})
	}
}
