package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/gigrank/internal/config"
	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/normalize"
	"github.com/roach88/gigrank/internal/pipeline"
	"github.com/roach88/gigrank/internal/scoring"
	"github.com/roach88/gigrank/internal/store"
)

// app is the component graph shared by all commands.
type app struct {
	cfg      *config.Config
	store    *store.Store
	coord    *coord.Coordinator
	norm     *normalize.Normalizer
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// openApp loads configuration, configures logging and opens the store.
// Callers must Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, CodeConfig, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, opts.Verbose)
	slog.SetDefault(logger)

	profile := scoring.DefaultProfile()
	if cfg.ProfilePath != "" {
		profile, err = scoring.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, CodeConfig, "failed to load profile", err)
		}
	}

	slog.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath, store.WithBusyTimeout(cfg.BusyTimeout))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, CodeDatabase, "failed to open database", err)
	}

	c := coord.New(
		coord.WithLockTimeout(cfg.WriteLockTimeout),
		coord.WithLogger(logger))

	engOpts := []decision.Option{
		decision.WithLogger(logger),
		decision.WithJudgeTimeout(cfg.JudgeTimeout),
		decision.WithBatchRanking(cfg.BatchRanking),
	}
	if cfg.JudgeEnabled() {
		judge := decision.NewHTTPJudge(cfg.JudgeURL, cfg.JudgeModel, profile)
		judge.APIKey = cfg.JudgeAPIKey
		engOpts = append(engOpts, decision.WithJudge(judge))
		slog.Info("judge enabled", "url", cfg.JudgeURL, "model", cfg.JudgeModel)
	}

	p := pipeline.New(st, c, decision.New(profile, engOpts...), scoring.DefaultFitTable().Extend(profile),
		pipeline.WithJudgeBatchSize(cfg.JudgeBatchSize),
		pipeline.WithLogger(logger))

	return &app{
		cfg:      cfg,
		store:    st,
		coord:    c,
		norm:     normalize.New(),
		pipeline: p,
		logger:   logger,
	}, nil
}

// scanner builds a scanner that refreshes after ingesting.
func (a *app) scanner(opts ...ingest.ScannerOption) *ingest.Scanner {
	opts = append([]ingest.ScannerOption{
		ingest.WithRefresher(a.pipeline),
		ingest.WithScanLogger(a.logger),
	}, opts...)
	return ingest.NewScanner(a.store, a.coord, a.norm, opts...)
}

// Close closes the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// newLogger returns a text logger on w. verbose forces debug level.
func newLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
