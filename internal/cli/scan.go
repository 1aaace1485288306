package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/pipeline"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Analyze bool
	Limit   int
}

// ScanReport is the scan command's output.
type ScanReport struct {
	Root    string                  `json:"root"`
	Scan    ingest.ScanResult       `json:"scan"`
	Analyze *pipeline.AnalyzeResult `json:"analyze,omitempty"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Ingest export files and refresh scores",
		Long: `Ingest every new or changed CSV/JSON export under dir (default $DATA_ROOT)
and recompute scores. Scores are recomputed even when no file changed so
freshness reflects the current time.

Example:
  gigrank scan ~/Downloads/upwork_dna
  gigrank scan --analyze --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return formatter(opts.RootOptions, cmd).Fail(runScan(opts, cmd, args))
		},
	}

	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "run the judge pass after scanning")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max listings for the judge pass (default $JUDGE_BATCH_SIZE)")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command, args []string) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	root := a.cfg.DataRoot
	if len(args) == 1 {
		root = args[0]
	}

	f := formatter(opts.RootOptions, cmd)
	f.VerboseLog("Scanning %s into %s", root, a.cfg.DBPath)

	report := ScanReport{Root: root}
	report.Scan, err = a.scanner(ingest.WithAlwaysRefresh(true)).Scan(cmd.Context(), root)
	if err != nil {
		return WrapExitError(ExitFailure, CodeScan, "scan failed", err)
	}

	if opts.Analyze {
		res, err := analyze(cmd, a, opts.Limit)
		if err != nil {
			return err
		}
		report.Analyze = &res
	}

	return f.Render(report, func(w io.Writer) error {
		printScan(w, report)
		return nil
	})
}

// analyze runs the judge pass with limit, falling back to the configured
// batch size.
func analyze(cmd *cobra.Command, a *app, limit int) (pipeline.AnalyzeResult, error) {
	if limit <= 0 {
		limit = a.cfg.JudgeBatchSize
	}
	if !a.cfg.JudgeEnabled() {
		a.logger.Warn("judge not configured, skipping analysis")
	}
	res, err := a.pipeline.AnalyzePending(cmd.Context(), limit)
	if err != nil {
		return res, WrapExitError(ExitFailure, CodeAnalyze, "analysis failed", err)
	}
	return res, nil
}

func printScan(w io.Writer, r ScanReport) {
	fmt.Fprintf(w, "Scanned: %s\n", r.Root)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Files ===")
	fmt.Fprintf(w, "  Scanned: %d\n", r.Scan.ScannedFiles)
	fmt.Fprintf(w, "  New:     %d\n", r.Scan.NewFiles)
	fmt.Fprintf(w, "  Updated: %d\n", r.Scan.UpdatedFiles)
	fmt.Fprintf(w, "  Failed:  %d\n", r.Scan.FailedFiles)
	fmt.Fprintf(w, "  Dropped rows: %d\n", r.Scan.DroppedRows)
	if r.Scan.RefreshedAt != nil {
		fmt.Fprintf(w, "  Refreshed at: %s\n", r.Scan.RefreshedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "  Refreshed at: (not refreshed)")
	}
	if r.Analyze != nil {
		fmt.Fprintln(w)
		printAnalyze(w, *r.Analyze)
	}
}

func printAnalyze(w io.Writer, r pipeline.AnalyzeResult) {
	fmt.Fprintln(w, "=== Analysis ===")
	fmt.Fprintf(w, "  Candidates: %d\n", r.Candidates)
	fmt.Fprintf(w, "  Judged:     %d\n", r.Judged)
	fmt.Fprintf(w, "  Failed:     %d\n", r.Failed)
}
