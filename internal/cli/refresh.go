package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gigrank/internal/pipeline"
)

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	Analyze bool
	Limit   int
}

// RefreshReport is the refresh command's output.
type RefreshReport struct {
	RefreshedAt time.Time               `json:"refreshed_at"`
	Analyze     *pipeline.AnalyzeResult `json:"analyze,omitempty"`
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute keyword and opportunity scores",
		Long: `Recompute every keyword metric, opportunity and draft from the stored
listings without ingesting anything.

Example:
  gigrank refresh
  gigrank refresh --analyze --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return formatter(opts.RootOptions, cmd).Fail(runRefresh(opts, cmd))
		},
	}

	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "run the judge pass after refreshing")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max listings for the judge pass (default $JUDGE_BATCH_SIZE)")

	return cmd
}

func runRefresh(opts *RefreshOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var report RefreshReport
	report.RefreshedAt, err = a.pipeline.Refresh(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, CodeRefresh, "refresh failed", err)
	}

	if opts.Analyze {
		res, err := analyze(cmd, a, opts.Limit)
		if err != nil {
			return err
		}
		report.Analyze = &res
	}

	return formatter(opts.RootOptions, cmd).Render(report, func(w io.Writer) error {
		fmt.Fprintf(w, "Refreshed at: %s\n", report.RefreshedAt.Format(time.RFC3339))
		if report.Analyze != nil {
			fmt.Fprintln(w)
			printAnalyze(w, *report.Analyze)
		}
		return nil
	})
}
