package github

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	// ShortHashLength is the number of hash characters shown in messages
	ShortHashLength = 8

	// DisplayMessageLength is the maximum commit message length in outcome text
	DisplayMessageLength = 50

	// CommitDateLayout is the UTC layout used for commit_date
	CommitDateLayout = "2006-01-02 15:04:05 UTC"
)

// commitResponse is one element of the commit listing
//
// Example response from GET /repos/{owner}/{repo}/commits?per_page=1:
//
//	[
//	  {
//	    "sha": "def456789012abcdef0123456789abcdef012345",
//	    "commit": {
//	      "author": {"name": "octocat", "date": "2025-03-01T09:12:44Z"},
//	      "committer": {"name": "GitHub", "date": "2025-03-01T09:30:02Z"},
//	      "message": "Add install script\n\nLonger body..."
//	    },
//	    "html_url": "https://github.com/ucli-tools/gits/commit/def4567..."
//	  }
//	]
//
// Note: the committer date is used, not the author date
type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer *struct {
			Date string `json:"date"`
		} `json:"committer"`
		Message string `json:"message"`
	} `json:"commit"`
}

// Commit is the normalized latest commit of a repository
type Commit struct {
	Hash      string `json:"hash"`
	ShortHash string `json:"short_hash"`
	Date      string `json:"date"` // CommitDateLayout, UTC
	Message   string `json:"message"` // first line, untruncated
	URL       string `json:"url"`
}

// DisplayMessage returns the first line of the message cut for display
func (c *Commit) DisplayMessage() string {
	return Truncate(c.Message, DisplayMessageLength)
}

// Truncate cuts s to max runes and marks the cut with "...".
// Strings of max runes or fewer are returned unchanged.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// ShortHash returns the leading ShortHashLength characters of hash
func ShortHash(hash string) string {
	if len(hash) <= ShortHashLength {
		return hash
	}
	return hash[:ShortHashLength]
}

// firstLine returns the first line of a commit message without trailing whitespace
func firstLine(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// validSHA accepts any non-empty lower-case hex string. A full-length sha
// must also not be the zero hash.
func validSHA(sha string) bool {
	if sha == "" {
		return false
	}
	for _, c := range sha {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	if len(sha) == len(plumbing.ZeroHash.String()) {
		return plumbing.NewHash(sha) != plumbing.ZeroHash
	}
	return true
}

// toCommit converts the API payload into a Commit
func (cr commitResponse) toCommit(webURL string, ref Reference) (*Commit, error) {
	sha := strings.ToLower(strings.TrimSpace(cr.SHA))
	if !validSHA(sha) {
		return nil, fmt.Errorf("%w: invalid sha %q", ErrMalformedResponse, cr.SHA)
	}

	if cr.Commit.Committer == nil || cr.Commit.Committer.Date == "" {
		return nil, fmt.Errorf("%w: missing committer date", ErrMalformedResponse)
	}
	when, err := time.Parse(time.RFC3339, cr.Commit.Committer.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid committer date %q: %v", ErrMalformedResponse, cr.Commit.Committer.Date, err)
	}
	when = when.UTC()

	return &Commit{
		Hash:      sha,
		ShortHash: ShortHash(sha),
		Date:      when.Format(CommitDateLayout),
		Message:   firstLine(cr.Commit.Message),
		URL:       fmt.Sprintf("%s/%s/%s/commit/%s", strings.TrimRight(webURL, "/"), ref.Owner, ref.Name, sha),
	}, nil
}
