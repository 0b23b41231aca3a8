package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/ucli-tools/registry/internal/github"
	"github.com/ucli-tools/registry/internal/reconcile"
)

// Printer renders outcomes and summaries for the terminal
type Printer struct {
	out     io.Writer
	green   *color.Color
	yellow  *color.Color
	red     *color.Color
	faint   *color.Color
	bold    *color.Color
	verbose bool
}

// NewPrinter creates a Printer writing to out. Color is applied only when
// useColor is set; callers pass !color.NoColor for a terminal.
func NewPrinter(out io.Writer, useColor, verbose bool) *Printer {
	p := &Printer{
		out:     out,
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
		faint:   color.New(color.Faint),
		bold:    color.New(color.Bold),
		verbose: verbose,
	}
	for _, c := range []*color.Color{p.green, p.yellow, p.red, p.faint, p.bold} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Header announces the run
func (p *Printer) Header(path string, entries int, dryRun bool) {
	mode := ""
	if dryRun {
		mode = p.yellow.Sprint(" (dry run)")
	}
	fmt.Fprintf(p.out, "Updating %d tool(s) from %s%s\n", entries, path, mode)
}

// Outcome prints one line per entry
func (p *Printer) Outcome(o reconcile.Outcome, dryRun bool) {
	name := p.bold.Sprint(o.Name)
	switch o.Status {
	case reconcile.StatusUpdated:
		line := o.Reason
		if dryRun {
			prev := o.PreviousVersion
			if prev == "" {
				prev = "-"
			}
			line = fmt.Sprintf("%s -> %s (would update: %s)", prev, github.ShortHash(o.Version), o.Reason)
		}
		fmt.Fprintf(p.out, "  %s %s: %s\n", p.green.Sprint("+"), name, line)
	case reconcile.StatusCurrent:
		fmt.Fprintf(p.out, "  %s %s: %s\n", p.faint.Sprint("="), name, o.Reason)
	case reconcile.StatusSkipped:
		fmt.Fprintf(p.out, "  %s %s: %s\n", p.yellow.Sprint("-"), name, o.Reason)
	case reconcile.StatusFailed:
		fmt.Fprintf(p.out, "  %s %s: %s\n", p.red.Sprint("x"), name, o.Reason)
		if p.verbose && o.Err != nil {
			fmt.Fprintf(p.out, "      %s\n", p.faint.Sprint(o.Err.Error()))
		}
	}
}

// Summary prints the final tally
func (p *Printer) Summary(s Summary) {
	fmt.Fprintf(p.out, "\nRegistry update complete (%s)\n", s.Mode)
	fmt.Fprintf(p.out, "  Checked:   %d\n", s.Checked)
	fmt.Fprintf(p.out, "  Updated:   %s\n", p.green.Sprint(s.Updated))
	fmt.Fprintf(p.out, "  Unchanged: %d\n", s.Unchanged)
	if s.Skipped > 0 {
		fmt.Fprintf(p.out, "  Skipped:   %s\n", p.yellow.Sprint(s.Skipped))
	}
	if s.Failed > 0 {
		fmt.Fprintf(p.out, "  Failed:    %s\n", p.red.Sprint(s.Failed))
	} else {
		fmt.Fprintf(p.out, "  Failed:    0\n")
	}

	switch {
	case s.DryRun:
		fmt.Fprintln(p.out, p.yellow.Sprint("Dry run: registry not written"))
	case s.Saved:
		fmt.Fprintln(p.out, p.green.Sprint("Registry saved"))
	case s.Updated == 0:
		fmt.Fprintln(p.out, "No changes to save")
	}
}

// Table renders all outcomes as a table
func (p *Printer) Table(outcomes []reconcile.Outcome) {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Tool", "Status", "Version", "Details"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, o := range outcomes {
		table.Append([]string{
			o.Name,
			string(o.Status),
			displayVersion(o.Version),
			o.Reason,
		})
	}
	table.Render()
}

// jsonOutcome is an Outcome with its error flattened for output
type jsonOutcome struct {
	reconcile.Outcome
	Error string `json:"error,omitempty"`
}

// JSON writes the summary and outcomes as one indented JSON object
func JSON(w io.Writer, s Summary, outcomes []reconcile.Outcome) error {
	payload := struct {
		Summary  Summary       `json:"summary"`
		Outcomes []jsonOutcome `json:"outcomes"`
	}{Summary: s, Outcomes: make([]jsonOutcome, 0, len(outcomes))}

	for _, o := range outcomes {
		jo := jsonOutcome{Outcome: o}
		if o.Err != nil {
			jo.Error = o.Err.Error()
		}
		payload.Outcomes = append(payload.Outcomes, jo)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func displayVersion(v string) string {
	if v == "" {
		return "-"
	}
	return github.ShortHash(v)
}
