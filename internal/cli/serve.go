package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/gigrank/internal/engine"
	"github.com/roach88/gigrank/internal/httpapi"
	"github.com/roach88/gigrank/internal/ingest"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	DataRoot string
	NoWatch  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background scanning",
		Long: `Run the HTTP API together with the background machinery:

- a scan, refresh and judge cycle every CYCLE_INTERVAL
- a watcher that scans the data root when export files change
- a retry worker for crawler runs that could not be written right away

Example:
  gigrank serve --db ./gigrank.db --root ~/Downloads/upwork_dna
  gigrank serve --addr 127.0.0.1:8000 --no-watch --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return formatter(opts.RootOptions, cmd).Fail(runServe(opts, cmd))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $HTTP_ADDR or :8000)")
	cmd.Flags().StringVar(&opts.DataRoot, "root", "", "data root to scan (default $DATA_ROOT)")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not watch the data root for changes")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.DataRoot != "" {
		cfg.DataRoot = opts.DataRoot
	}
	if opts.NoWatch {
		cfg.Watch = false
	}

	scanner := a.scanner(ingest.WithAlwaysRefresh(true))
	sched := engine.NewScheduler(scanner, a.pipeline, cfg.DataRoot,
		engine.WithInterval(cfg.CycleInterval),
		engine.WithAnalyzer(a.pipeline, cfg.JudgeBatchSize),
		engine.WithRunOnStart(true),
		engine.WithSchedulerLogger(a.logger))

	queue := engine.NewRetryQueue(
		engine.WithQueueSize(cfg.RetryQueueSize),
		engine.WithSnapshot(cfg.RetryQueuePath),
		engine.WithQueueLogger(a.logger))
	if err := queue.Load(); err != nil {
		a.logger.Warn("starting with an empty retry queue", "error", err)
	}
	runs := engine.NewRunIngestService(
		ingest.NewRunIngester(a.store, a.coord, a.norm, nil, a.logger),
		queue,
		engine.NewRunTracker(engine.DefaultTrackerSize),
		sched,
		engine.WithRunLogger(a.logger))
	defer runs.Close()

	srv := httpapi.New(httpapi.Config{
		Addr:            cfg.Addr,
		AllowOrigins:    cfg.CORSOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, httpapi.Deps{
		Pipeline:  a.pipeline,
		Scanner:   scanner,
		Runs:      runs,
		Scheduler: sched,
		Store:     a.store,
		Root:      cfg.DataRoot,
	}, a.logger)

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	background := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("background task stopped", "task", name, "error", err)
			}
		}()
	}

	background("scheduler", sched.Run)
	background("retry worker", runs.RunRetryWorker)
	if cfg.Watch {
		if info, err := os.Stat(cfg.DataRoot); err == nil && info.IsDir() {
			w := engine.NewWatcher(cfg.DataRoot, sched,
				engine.WithWatchDebounce(cfg.WatchDebounce),
				engine.WithWatchLogger(a.logger))
			background("watcher", w.Run)
		} else {
			a.logger.Warn("data root not watched", "root", cfg.DataRoot, "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "gigrank listening on %s (data root %s)\n", cfg.Addr, cfg.DataRoot)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return WrapExitError(ExitFailure, CodeServer, "server error", err)
	}

	if n := runs.QueueDepth(); n > 0 {
		a.logger.Warn("stopping with queued runs", "runs", n, "snapshot", cfg.RetryQueuePath)
	}
	a.logger.Info("stopped gracefully")
	return nil
}
