package limits

// Size limits for remote API responses

const (
	// CommitList is the size limit for a commit listing response (1MB).
	// A single-commit page is a few KB; anything larger is not what we asked for.
	CommitList = 1 << 20

	// ErrorBody is the maximum size for error response bodies (1KB)
	// Used when parsing error messages from failed API calls
	ErrorBody = 1024
)
