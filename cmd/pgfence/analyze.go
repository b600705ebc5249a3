package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flvmnt/pgfence/internal/analyzer"
	"github.com/flvmnt/pgfence/internal/config"
	"github.com/flvmnt/pgfence/internal/extract"
	"github.com/flvmnt/pgfence/internal/plugin"
	"github.com/flvmnt/pgfence/internal/report"
	"github.com/flvmnt/pgfence/internal/risk"
	"github.com/flvmnt/pgfence/internal/snapshot"
	"github.com/flvmnt/pgfence/internal/stats"
)

// statsFetchTimeout bounds the one-shot stats query.
const statsFetchTimeout = 30 * time.Second

type analyzeFlags struct {
	format             string
	output             string
	dbURL              string
	statsFile          string
	minPGVersion       int
	maxRisk            string
	ci                 bool
	noLockTimeout      bool
	noStatementTimeout bool
	maxLockTimeout     int64
	maxStatementTimeout int64
	disableRules       []string
	enableRules        []string
	snapshotPath       string
	pluginPaths        []string
	configPath         string
	noColor            bool
}

func buildAnalyzeCommand() *cobra.Command {
	flags := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Analyze migration files for unsafe locking patterns",
		Long: `Analyze one or more migration files and report the lock mode each DDL
statement acquires, a calibrated risk level, migration-wide policy
violations, and safe-rewrite recipes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", "auto", "migration format: sql, typeorm, prisma, knex, drizzle, sequelize, auto")
	cmd.Flags().StringVar(&flags.output, "output", "cli", "output format: cli, json, github, sarif")
	cmd.Flags().StringVar(&flags.dbURL, "db-url", "", "fetch table statistics from this database (read-only, one-shot)")
	cmd.Flags().StringVar(&flags.statsFile, "stats-file", "", "JSON table statistics file (ignored with --db-url)")
	cmd.Flags().IntVar(&flags.minPGVersion, "min-pg-version", 11, "oldest PostgreSQL major version the migration must be safe on")
	cmd.Flags().StringVar(&flags.maxRisk, "max-risk", "high", "maximum acceptable risk: safe, low, medium, high, critical")
	cmd.Flags().BoolVar(&flags.ci, "ci", false, "exit 1 when risk exceeds --max-risk or an error-grade policy violation exists")
	cmd.Flags().BoolVar(&flags.noLockTimeout, "no-lock-timeout", false, "do not require SET lock_timeout")
	cmd.Flags().BoolVar(&flags.noStatementTimeout, "no-statement-timeout", false, "do not require SET statement_timeout")
	cmd.Flags().Int64Var(&flags.maxLockTimeout, "max-lock-timeout", 0, "lock_timeout ceiling in milliseconds")
	cmd.Flags().Int64Var(&flags.maxStatementTimeout, "max-statement-timeout", 0, "statement_timeout ceiling in milliseconds")
	cmd.Flags().StringSliceVar(&flags.disableRules, "disable-rules", nil, "rule IDs to disable")
	cmd.Flags().StringSliceVar(&flags.enableRules, "enable-rules", nil, "restrict analysis to these rule IDs")
	cmd.Flags().StringVar(&flags.snapshotPath, "snapshot", "", "schema snapshot JSON for collaborator rules")
	cmd.Flags().StringSliceVar(&flags.pluginPaths, "plugin", nil, "plugin paths (each exports a Manifest)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "config file path (default "+config.DefaultFileName+" if present)")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, flags *analyzeFlags) error {
	cfg, err := buildConfig(flags)
	if err != nil {
		return err
	}

	format, err := extract.ParseFormat(flags.format)
	if err != nil {
		return err
	}

	outFormat, err := report.ParseFormat(flags.output)
	if err != nil {
		return err
	}

	opts, err := buildOptions(cmd, flags)
	if err != nil {
		return err
	}

	inputs := make([]analyzer.Input, 0, len(args))
	for _, path := range args {
		inputs = append(inputs, analyzer.Input{Path: path, Format: format})
	}

	a := analyzer.New(cfg, opts...)
	results, err := a.AnalyzeFiles(inputs)
	if err != nil {
		return err
	}

	var reporter report.Reporter
	if outFormat == report.FormatCLI {
		reporter = &report.CLIReporter{NoColor: flags.noColor}
	} else if reporter, err = report.New(outFormat); err != nil {
		return err
	}
	if err := reporter.Report(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	if flags.ci && gateFails(results, cfg.MaxRisk) {
		return errCIGate
	}
	return nil
}

// gateFails implements the CI gate: any file's effective maximum risk
// above the ceiling, or any error-grade policy violation.
func gateFails(results []analyzer.Result, maxRisk risk.Level) bool {
	for _, r := range results {
		if r.MaxRisk > maxRisk || r.HasErrorViolation() {
			return true
		}
	}
	return false
}

// buildConfig assembles the immutable analysis configuration: defaults,
// then the config file, then flags.
func buildConfig(flags *analyzeFlags) (config.Config, error) {
	cfg := config.Default()

	path := flags.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFileName); err == nil {
			path = config.DefaultFileName
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			return cfg, err
		}
	}

	cfg.MinPGVersion = flags.minPGVersion

	maxRisk, err := risk.ParseLevel(flags.maxRisk)
	if err != nil {
		return cfg, err
	}
	cfg.MaxRisk = maxRisk

	if flags.noLockTimeout {
		cfg.RequireLockTimeout = false
	}
	if flags.noStatementTimeout {
		cfg.RequireStatementTimeout = false
	}
	if flags.maxLockTimeout > 0 {
		cfg.MaxLockTimeoutMs = flags.maxLockTimeout
	}
	if flags.maxStatementTimeout > 0 {
		cfg.MaxStatementTimeoutMs = flags.maxStatementTimeout
	}
	if len(flags.disableRules) > 0 {
		cfg.DisabledRules = flags.disableRules
	}
	if len(flags.enableRules) > 0 {
		cfg.EnabledRules = flags.enableRules
	}

	return cfg, nil
}

// buildOptions loads the optional collaborators: table statistics, the
// schema snapshot, and plugins.
func buildOptions(cmd *cobra.Command, flags *analyzeFlags) ([]analyzer.Option, error) {
	var opts []analyzer.Option

	switch {
	case flags.dbURL != "":
		ctx, cancel := context.WithTimeout(cmd.Context(), statsFetchTimeout)
		defer cancel()
		tableStats, err := stats.Fetch(ctx, flags.dbURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analyzer.WithStats(risk.NewStatsMap(tableStats)))
	case flags.statsFile != "":
		tableStats, err := stats.LoadFile(flags.statsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analyzer.WithStats(risk.NewStatsMap(tableStats)))
	}

	if flags.snapshotPath != "" {
		snap, err := snapshot.Load(flags.snapshotPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analyzer.WithSnapshot(snap))
	}

	if len(flags.pluginPaths) > 0 {
		manifests, err := plugin.Load(flags.pluginPaths)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analyzer.WithPlugins(manifests))
	}

	return opts, nil
}
