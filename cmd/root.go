package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/ucli-tools/registry/internal/config"
	"github.com/ucli-tools/registry/internal/github"
	"github.com/ucli-tools/registry/internal/history"
	"github.com/ucli-tools/registry/internal/paths"
	"github.com/ucli-tools/registry/internal/reconcile"
	"github.com/ucli-tools/registry/internal/registry"
	"github.com/ucli-tools/registry/internal/report"
	"github.com/ucli-tools/registry/internal/updater"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "ucli-registry",
	Short: "Update registry versions to the latest upstream commits",
	Long: `Resolve the latest commit of every official tool in the registry and
rewrite its version and version_info when upstream has moved.

Only apps.official entries with a repo are checked. The rest of the
registry file (key order, comments, unrelated fields) is kept as is.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.ReadFile(v, configFile)
		return err
	},
	RunE: runUpdate,
}

// Execute runs the root command
func Execute() error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.Flags()
	flags.Bool("dry-run", false, "resolve and report, but do not write the registry")
	flags.String("registry-file", paths.DefaultRegistryFile, "path to the registry YAML file")
	flags.String("api-url", github.DefaultAPIURL, "GitHub API base URL")
	flags.Duration("timeout", github.DefaultTimeout, "per-request timeout")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&configFile, "config", "", "config file (default .ucli-registry.yaml in . or "+paths.DefaultConfigDir()+")")
	persistent.BoolP("verbose", "v", false, "enable debug logging")
	persistent.Bool("json", false, "print JSON")
	persistent.String("history-db", "", "record runs in this sqlite database (bare flag uses the default state dir)")
	persistent.Lookup("history-db").NoOptDefVal = paths.DefaultHistoryPath()

	bind(flags, config.KeyDryRun, "dry-run")
	bind(flags, config.KeyRegistryFile, "registry-file")
	bind(flags, config.KeyAPIURL, "api-url")
	bind(flags, config.KeyTimeout, "timeout")
	bind(persistent, config.KeyVerbose, "verbose")
	bind(persistent, config.KeyJSON, "json")
	bind(persistent, config.KeyHistoryDB, "history-db")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := mustBuildLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	client := github.NewClient(append(cfg.ClientOptions(), github.WithLogger(logger))...)
	store := registry.NewStore(cfg.RegistryFile, logger)
	reconciler := reconcile.New(client, reconcile.WithLogger(logger))

	opts := []updater.Option{updater.WithLogger(logger)}
	if cfg.HistoryDB != "" {
		hist, err := history.Open(cmd.Context(), cfg.HistoryDB)
		if err != nil {
			// history is optional; the update still runs
			logger.Warn("run history disabled", zap.String("path", cfg.HistoryDB), zap.Error(err))
		} else {
			defer hist.Close()
			opts = append(opts, updater.WithRecorder(hist))
		}
	}

	rep, runErr := updater.NewRunner(store, reconciler, opts...).Run(cmd.Context(), updater.Options{DryRun: cfg.DryRun})
	if errors.Is(runErr, registry.ErrDocumentLoad) {
		return runErr
	}

	out := cmd.OutOrStdout()
	if cfg.JSON {
		if err := report.JSON(out, rep.Summary, rep.Outcomes); err != nil {
			return err
		}
		return runErr
	}

	p := report.NewPrinter(out, !color.NoColor, cfg.Verbose)
	p.Header(rep.RegistryPath, rep.Entries, cfg.DryRun)
	for _, o := range rep.Outcomes {
		p.Outcome(o, cfg.DryRun)
	}
	if cfg.Verbose && len(rep.Outcomes) > 0 {
		fmt.Fprintln(out)
		p.Table(rep.Outcomes)
	}
	p.Summary(rep.Summary)
	return runErr
}

// mustBuildLogger builds a console logger on stderr so stdout stays
// parseable with --json
func mustBuildLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("NO_COLOR") == "" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func bind(flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind flag %s: %v\n", name, err)
	}
}
