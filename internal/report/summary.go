package report

import (
	"github.com/ucli-tools/registry/internal/reconcile"
)

// Run modes
const (
	ModeDryRun = "dry-run"
	ModeLive   = "live"
)

// Summary is the tally of a run
type Summary struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	DryRun    bool   `json:"dry_run"`
	Checked   int    `json:"checked"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Saved     bool   `json:"saved"`
}

// Summarize aggregates outcomes. Failed counts resolution errors only;
// entries already at the latest commit are Unchanged and entries without
// a repository are Skipped.
func Summarize(runID string, outcomes []reconcile.Outcome, dryRun bool) Summary {
	s := Summary{
		RunID:   runID,
		Mode:    ModeLive,
		DryRun:  dryRun,
		Checked: len(outcomes),
	}
	if dryRun {
		s.Mode = ModeDryRun
	}

	for _, o := range outcomes {
		switch o.Status {
		case reconcile.StatusUpdated:
			s.Updated++
		case reconcile.StatusCurrent:
			s.Unchanged++
		case reconcile.StatusSkipped:
			s.Skipped++
		case reconcile.StatusFailed:
			s.Failed++
		}
	}
	return s
}
