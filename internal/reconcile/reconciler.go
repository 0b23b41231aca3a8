package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ucli-tools/registry/internal/github"
	"github.com/ucli-tools/registry/internal/registry"
	"go.uber.org/zap"
)

// Outcome reasons shown to the user
const (
	ReasonNoRepository = "No repository URL specified"
	ReasonFetchFailed  = "Failed to fetch commit information"
)

// Resolver looks up the latest commit of a repository
type Resolver interface {
	LatestCommit(ctx context.Context, ref github.Reference) (*github.Commit, error)
}

// Status classifies an entry's outcome
type Status string

const (
	StatusUpdated Status = "updated" // version rewritten
	StatusCurrent Status = "current" // already at the latest commit
	StatusSkipped Status = "skipped" // no repository to check
	StatusFailed  Status = "failed"  // resolution error
)

// Outcome is the per-entry result of a reconciliation
type Outcome struct {
	Name            string `json:"name"`
	Repo            string `json:"repo,omitempty"`
	Status          Status `json:"status"`
	Reason          string `json:"reason"`
	PreviousVersion string `json:"previous_version,omitempty"`
	Version         string `json:"version,omitempty"`
	Err             error  `json:"-"`
}

// Updated reports whether the entry was rewritten
func (o Outcome) Updated() bool {
	return o.Status == StatusUpdated
}

// Result holds the outcomes of a run in entry order
type Result struct {
	Outcomes []Outcome
	Updated  int
}

// Reconciler compares stored versions against upstream and applies updates
type Reconciler struct {
	resolver Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger used for per-entry diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithClock overrides the clock used for version_info.updated_at
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler backed by resolver
func New(resolver Resolver, opts ...Option) *Reconciler {
	r := &Reconciler{
		resolver: resolver,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile processes entries in order. Entries are mutated in place when
// their upstream commit differs from the stored version. A failure on one
// entry never stops the others.
func (r *Reconciler) Reconcile(ctx context.Context, entries []*registry.Entry) *Result {
	result := &Result{Outcomes: make([]Outcome, 0, len(entries))}

	for _, entry := range entries {
		outcome := r.reconcileEntry(ctx, entry)
		if outcome.Updated() {
			result.Updated++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	r.logger.Debug("reconciliation complete",
		zap.Int("checked", len(entries)),
		zap.Int("updated", result.Updated))
	return result
}

func (r *Reconciler) reconcileEntry(ctx context.Context, entry *registry.Entry) Outcome {
	name := entry.Name()
	repo := strings.TrimSpace(entry.Repo())
	current := entry.Version()
	log := r.logger.With(zap.String("entry", name))

	outcome := Outcome{Name: name, Repo: repo, PreviousVersion: current, Version: current}

	if repo == "" {
		log.Debug("skipping entry without repository")
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonNoRepository
		return outcome
	}

	commit, err := r.resolve(ctx, repo)
	if err != nil {
		log.Warn("failed to resolve latest commit", zap.String("repo", repo), zap.Error(err))
		outcome.Status = StatusFailed
		outcome.Reason = ReasonFetchFailed
		outcome.Err = err
		return outcome
	}

	if commit.Hash == current {
		log.Debug("already at latest version", zap.String("sha", commit.ShortHash))
		outcome.Status = StatusCurrent
		outcome.Reason = fmt.Sprintf("Already at latest version %s", commit.ShortHash)
		return outcome
	}

	entry.SetVersion(commit.Hash)
	entry.SetVersionInfo(registry.VersionInfo{
		CommitDate:    commit.Date,
		CommitMessage: commit.Message,
		CommitURL:     commit.URL,
		UpdatedAt:     r.now().UTC().Format(registry.TimestampLayout),
	})

	log.Debug("updated entry",
		zap.String("from", current),
		zap.String("sha", commit.Hash))

	outcome.Status = StatusUpdated
	outcome.Version = commit.Hash
	outcome.Reason = fmt.Sprintf("Updated to %s: %s", commit.ShortHash, commit.DisplayMessage())
	return outcome
}

func (r *Reconciler) resolve(ctx context.Context, repo string) (*github.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", github.ErrNetwork, err)
	}
	ref, err := github.ParseReference(repo)
	if err != nil {
		return nil, err
	}
	return r.resolver.LatestCommit(ctx, ref)
}
