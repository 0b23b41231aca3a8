package github

import (
	"fmt"
	"regexp"
	"strings"
)

// Reference identifies a repository on a hosting provider
type Reference struct {
	Host  string
	Owner string
	Name  string
}

// String returns the reference in host/owner/name form
func (r Reference) String() string {
	return r.Host + "/" + r.Owner + "/" + r.Name
}

// Slug returns owner/name as used in API paths
func (r Reference) Slug() string {
	return r.Owner + "/" + r.Name
}

// Finds "<host>/<owner>/<repo>" with an optional scheme, userinfo and port
// anywhere in the input. The scp-like form "git@host:owner/repo" is accepted
// as well. Whatever follows the repo name after "/", "?", "#" or whitespace
// (tree/main, ?tab=readme, #readme, ...) is ignored.
var referenceRegex = regexp.MustCompile(
	`(?:[A-Za-z][A-Za-z0-9+.-]*://)?(?:[^@/\s]+@)?` +
		`([A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+)(?::[0-9]+)?[/:]` +
		`([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)(?:[/?#\s]|$)`)

// ParseReference extracts host, owner and repository name from a free-form
// repository URL such as "github.com/ucli-tools/gits" or
// "https://github.com/ucli-tools/gits.git".
func ParseReference(raw string) (Reference, error) {
	s := strings.TrimSpace(raw)
	m := referenceRegex.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}

	name := strings.TrimSuffix(m[3], ".git")
	if name == "" || name == "." || name == ".." || m[2] == "." || m[2] == ".." {
		return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, raw)
	}

	return Reference{
		Host:  strings.ToLower(m[1]),
		Owner: m[2],
		Name:  name,
	}, nil
}
