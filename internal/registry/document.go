package registry

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Parse decodes registry YAML into a Document.
// The root must be a mapping holding an apps.official sequence.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("registry is empty")
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("registry root is not a mapping")
	}

	apps := lookup(top, keyApps)
	if apps == nil || apps.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("registry has no %q mapping", keyApps)
	}
	official := lookup(apps, keyOfficial)
	if official == nil {
		return nil, fmt.Errorf("registry has no %s.%s list", keyApps, keyOfficial)
	}
	doc := &Document{root: &root}
	// "official:" with no items decodes as null
	if official.Kind == yaml.ScalarNode && official.Tag == "!!null" {
		return doc, nil
	}
	if official.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("registry %s.%s is not a list", keyApps, keyOfficial)
	}

	for i, item := range official.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("registry %s.%s[%d] is not a mapping", keyApps, keyOfficial, i)
		}
		doc.entries = append(doc.entries, &Entry{node: item, doc: doc})
	}
	return doc, nil
}

// Entries returns apps.official in document order
func (d *Document) Entries() []*Entry {
	return d.entries
}

// LastUpdated returns metadata.last_updated, or "" if unset
func (d *Document) LastUpdated() string {
	md := lookup(d.top(), keyMetadata)
	if md == nil || md.Kind != yaml.MappingNode {
		return ""
	}
	return scalar(md, keyLastUpdated)
}

// Touch sets metadata.last_updated, creating metadata if needed
func (d *Document) Touch(now time.Time) {
	top := d.top()
	md := d.own(top, keyMetadata)
	if md == nil {
		// metadata conventionally leads the document
		md = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		top.Content = append([]*yaml.Node{stringNode(keyMetadata), md}, top.Content...)
	} else if md.Kind != yaml.MappingNode {
		*md = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	d.setScalar(md, keyLastUpdated, now.UTC().Format(TimestampLayout))
}

// Marshal encodes the document in block style with two-space indentation
func (d *Document) Marshal() ([]byte, error) {
	blockStyle(d.root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) top() *yaml.Node {
	return d.root.Content[0]
}

// Name returns the display name
func (e *Entry) Name() string { return scalar(e.node, keyName) }

// Repo returns the repository reference as written in the registry
func (e *Entry) Repo() string { return scalar(e.node, keyRepo) }

// Version returns the stored commit hash or fallback token
func (e *Entry) Version() string { return scalar(e.node, keyVersion) }

// SetVersion sets version, appending the key if absent
func (e *Entry) SetVersion(v string) { e.doc.setScalar(e.node, keyVersion, v) }

// VersionInfo returns version_info, or nil if the entry has never been resolved
func (e *Entry) VersionInfo() *VersionInfo {
	vi := lookup(e.node, keyVersionInfo)
	if vi == nil || vi.Kind != yaml.MappingNode {
		return nil
	}
	return &VersionInfo{
		CommitDate:    scalar(vi, keyCommitDate),
		CommitMessage: scalar(vi, keyCommitMessage),
		CommitURL:     scalar(vi, keyCommitURL),
		UpdatedAt:     scalar(vi, keyUpdatedAt),
	}
}

// SetVersionInfo upserts version_info. Existing keys keep their position and
// any keys this tool does not manage are left alone.
func (e *Entry) SetVersionInfo(info VersionInfo) {
	vi := e.doc.own(e.node, keyVersionInfo)
	if vi == nil {
		vi = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		e.node.Content = append(e.node.Content, stringNode(keyVersionInfo), vi)
	} else if vi.Kind != yaml.MappingNode {
		*vi = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	e.doc.setScalar(vi, keyCommitDate, info.CommitDate)
	e.doc.setScalar(vi, keyCommitMessage, info.CommitMessage)
	e.doc.setScalar(vi, keyCommitURL, info.CommitURL)
	e.doc.setScalar(vi, keyUpdatedAt, info.UpdatedAt)
}

// lookup returns the value node for key in a mapping node, following an alias
func lookup(m *yaml.Node, key string) *yaml.Node {
	if i := valueIndex(m, key); i >= 0 {
		return resolve(m.Content[i])
	}
	return nil
}

// valueIndex returns the index of key's value in m.Content, or -1
func valueIndex(m *yaml.Node, key string) int {
	if m == nil || m.Kind != yaml.MappingNode {
		return -1
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i + 1
		}
	}
	return -1
}

func resolve(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return n.Alias
	}
	return n
}

// own returns the value node for key such that editing it changes no other
// place in the document. An alias under key is replaced by a copy of its
// target; aliases elsewhere that point at an anchored value are replaced by
// copies and the anchor is dropped.
func (d *Document) own(m *yaml.Node, key string) *yaml.Node {
	i := valueIndex(m, key)
	if i < 0 {
		return nil
	}
	v := m.Content[i]
	if v.Kind == yaml.AliasNode && v.Alias != nil {
		v = clone(v.Alias)
		m.Content[i] = v
	}
	if v.Anchor != "" {
		inlineAliases(d.root, v)
		v.Anchor = ""
	}
	return v
}

// inlineAliases replaces every alias of target below n with a copy of target
func inlineAliases(n, target *yaml.Node) {
	for i, c := range n.Content {
		if c.Kind == yaml.AliasNode {
			if c.Alias == target {
				n.Content[i] = clone(target)
			}
			continue
		}
		inlineAliases(c, target)
	}
}

// clone deep-copies n without anchors. Aliases inside the copy keep pointing
// at their original targets.
func clone(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	if n.Kind == yaml.AliasNode {
		return &c
	}
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		c.Content[i] = clone(child)
	}
	return &c
}

// scalar returns the string value of key, or "" when absent, null or not a scalar
func scalar(m *yaml.Node, key string) string {
	v := lookup(m, key)
	if v == nil || v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
		return ""
	}
	return v.Value
}

// setScalar upserts key as a string scalar, preserving key position and comments
func (d *Document) setScalar(m *yaml.Node, key, value string) {
	if v := d.own(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Style = 0
		v.Content = nil
		v.Alias = nil
		return
	}
	m.Content = append(m.Content, stringNode(key), stringNode(value))
}

// stringNode builds a plain string scalar; the encoder quotes values that
// would otherwise resolve to another type (e.g. a hash made of digits)
func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// blockStyle clears flow style on every collection so output is block style
func blockStyle(n *yaml.Node) {
	if n == nil {
		return
	}
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style &^= yaml.FlowStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
