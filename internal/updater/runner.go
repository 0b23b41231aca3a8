package updater

import (
	"context"
	"time"

	"github.com/ucli-tools/registry/internal/history"
	"github.com/ucli-tools/registry/internal/reconcile"
	"github.com/ucli-tools/registry/internal/registry"
	"github.com/ucli-tools/registry/internal/report"
	"go.uber.org/zap"
)

// Phase is a state of a single run
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseReconciling Phase = "reconciling"
	PhaseSaving      Phase = "saving"
	PhaseSkipped     Phase = "skipped" // nothing changed, save not needed
	PhaseReporting   Phase = "reporting"
	PhaseDone        Phase = "done"
	PhaseAborted     Phase = "aborted"
)

// Recorder persists finished runs. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Options controls a single run
type Options struct {
	DryRun bool
}

// Report is everything a finished (or aborted) run produced
type Report struct {
	RunID        string
	RegistryPath string
	StartedAt    time.Time
	FinishedAt   time.Time
	Phases       []Phase // in the order they were entered
	Entries      int
	Outcomes     []reconcile.Outcome
	Summary      report.Summary
}

// Phase returns the last phase entered
func (r *Report) Phase() Phase {
	if len(r.Phases) == 0 {
		return ""
	}
	return r.Phases[len(r.Phases)-1]
}

// Runner drives one load, reconcile, save cycle over the registry
type Runner struct {
	store      *registry.Store
	reconciler *reconcile.Reconciler
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Runner
type Option func(*Runner)

// WithRecorder enables run history
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the clock used for run timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner
func NewRunner(store *registry.Store, reconciler *reconcile.Reconciler, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		reconciler: reconciler,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      history.NewRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one update. The returned Report is never nil. A non-nil
// error wraps registry.ErrDocumentLoad or registry.ErrDocumentSave; all
// per-entry failures are carried in the Report instead.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	rep := &Report{
		RunID:        r.newID(),
		RegistryPath: r.store.Path(),
		StartedAt:    r.now(),
	}
	log := r.logger.With(zap.String("run_id", rep.RunID), zap.Bool("dry_run", opts.DryRun))

	enter := func(p Phase) {
		rep.Phases = append(rep.Phases, p)
		log.Debug("phase", zap.String("phase", string(p)))
	}

	enter(PhaseLoading)
	doc, err := r.store.Load()
	if err != nil {
		enter(PhaseAborted)
		log.Debug("registry load failed", zap.String("path", rep.RegistryPath), zap.Error(err))
		rep.Summary = report.Summarize(rep.RunID, nil, opts.DryRun)
		r.finish(ctx, rep, err)
		return rep, err
	}
	entries := doc.Entries()
	rep.Entries = len(entries)

	enter(PhaseReconciling)
	result := r.reconciler.Reconcile(ctx, entries)
	rep.Outcomes = result.Outcomes
	rep.Summary = report.Summarize(rep.RunID, result.Outcomes, opts.DryRun)

	if result.Updated > 0 {
		enter(PhaseSaving)
		if err := r.store.Save(doc, opts.DryRun); err != nil {
			enter(PhaseAborted)
			log.Debug("registry save failed", zap.String("path", rep.RegistryPath), zap.Error(err))
			r.finish(ctx, rep, err)
			return rep, err
		}
		rep.Summary.Saved = !opts.DryRun
	} else {
		enter(PhaseSkipped)
	}

	enter(PhaseReporting)
	r.finish(ctx, rep, nil)
	enter(PhaseDone)

	log.Info("registry update finished",
		zap.Int("checked", rep.Summary.Checked),
		zap.Int("updated", rep.Summary.Updated),
		zap.Int("failed", rep.Summary.Failed),
		zap.Bool("saved", rep.Summary.Saved))
	return rep, nil
}

// finish stamps the report and records it. Recording is best effort.
func (r *Runner) finish(ctx context.Context, rep *Report, runErr error) {
	rep.FinishedAt = r.now()
	if r.recorder == nil {
		return
	}

	run := history.Run{
		ID:           rep.RunID,
		RegistryPath: rep.RegistryPath,
		StartedAt:    rep.StartedAt,
		FinishedAt:   rep.FinishedAt,
		Summary:      rep.Summary,
		Outcomes:     rep.Outcomes,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// a cancelled run is still worth recording
	if err := r.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to record run history", zap.String("run_id", rep.RunID), zap.Error(err))
	}
}

