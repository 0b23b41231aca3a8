package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/ucli-tools/registry/internal/config"
	"github.com/ucli-tools/registry/internal/history"
	"github.com/ucli-tools/registry/internal/paths"
	"github.com/ucli-tools/registry/internal/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs",
	Long: `List recent updater runs recorded with --history-db, newest first.

With a run ID, show that run's per-tool outcomes. The database defaults to
` + paths.DefaultHistoryPath() + ` when --history-db is not set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	dbPath := cfg.HistoryDB
	if dbPath == "" {
		dbPath = paths.DefaultHistoryPath()
	}

	store, err := history.Open(cmd.Context(), dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cfg.JSON {
			return report.JSON(out, run.Summary, run.Outcomes)
		}
		fmt.Fprintf(out, "Run %s at %s (%s)\n", run.ID, run.StartedAt.Local().Format(time.DateTime), run.RegistryPath)
		if run.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", run.Error)
		}
		p := report.NewPrinter(out, false, true)
		p.Table(run.Outcomes)
		p.Summary(run.Summary)
		return nil
	}

	runs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if cfg.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"runs": runs})
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded in %s\n", dbPath)
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Run", "Started", "Mode", "Checked", "Updated", "Failed", "Saved", "Error"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Summary.Mode,
			strconv.Itoa(r.Summary.Checked),
			strconv.Itoa(r.Summary.Updated),
			strconv.Itoa(r.Summary.Failed),
			strconv.FormatBool(r.Summary.Saved),
			r.Error,
		})
	}
	table.Render()
	return nil
}
