package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/pipeline"
)

// NewKeywordsCommand creates the keywords command.
func NewKeywordsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "List keyword recommendations",
		Long: `List keyword metrics ordered by opportunity score.

Example:
  gigrank keywords --limit 20
  gigrank keywords --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return formatter(rootOpts, cmd).Fail(err)
			}
			defer a.Close()

			metrics := a.pipeline.KeywordRecommendations(cmd.Context(), limit)
			return formatter(rootOpts, cmd).Render(metrics, func(w io.Writer) error {
				return printKeywords(w, metrics)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", pipeline.DefaultLimit, "max keywords")
	return cmd
}

// OpportunitiesOptions holds flags for the opportunities command.
type OpportunitiesOptions struct {
	*RootOptions
	Limit        int
	SafeOnly     bool
	Keyword      string
	ApplyOnly    bool
	FreshOnly    bool
	MaxProposals int
}

// NewOpportunitiesCommand creates the opportunities command.
func NewOpportunitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpportunitiesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "List ranked job opportunities",
		Long: `List scored opportunities, judged ones first.

Example:
  gigrank opportunities --apply-only --fresh-only
  gigrank opportunities --keyword "n8n" --max-proposals 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return formatter(opts.RootOptions, cmd).Fail(err)
			}
			defer a.Close()

			q := pipeline.OpportunityQuery{
				Limit:     opts.Limit,
				SafeOnly:  opts.SafeOnly,
				Keyword:   opts.Keyword,
				ApplyOnly: opts.ApplyOnly,
				FreshOnly: opts.FreshOnly,
			}
			if cmd.Flags().Changed("max-proposals") {
				q.MaxProposals = &opts.MaxProposals
			}

			views := a.pipeline.Opportunities(cmd.Context(), q)
			return formatter(opts.RootOptions, cmd).Render(views, func(w io.Writer) error {
				return printOpportunities(w, views)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", pipeline.DefaultLimit, "max opportunities")
	cmd.Flags().BoolVar(&opts.SafeOnly, "safe-only", false, "only listings that pass the safety threshold")
	cmd.Flags().StringVar(&opts.Keyword, "keyword", "", "only listings for this keyword")
	cmd.Flags().BoolVar(&opts.ApplyOnly, "apply-only", false, "only listings marked apply-now")
	cmd.Flags().BoolVar(&opts.FreshOnly, "fresh-only", false, "only recently posted listings")
	cmd.Flags().IntVar(&opts.MaxProposals, "max-proposals", 0, "only listings with at most this many proposals")

	return cmd
}

// SummaryReport is the summary command's output.
type SummaryReport struct {
	Summary model.Summary        `json:"summary"`
	Queue   model.QueueTelemetry `json:"queue"`
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show store counts and crawler queue telemetry",
		Long: `Show how many listings, providers, keywords and opportunities are stored,
when data last arrived, and the crawler's last reported queue state.

Example:
  gigrank summary --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return formatter(rootOpts, cmd).Fail(err)
			}
			defer a.Close()

			report := SummaryReport{
				Summary: a.pipeline.Summary(cmd.Context()),
				Queue:   a.pipeline.QueueTelemetry(cmd.Context()),
			}
			return formatter(rootOpts, cmd).Render(report, func(w io.Writer) error {
				printSummary(w, report)
				return nil
			})
		},
	}
}

func printKeywords(w io.Writer, metrics []model.KeywordMetric) error {
	if len(metrics) == 0 {
		fmt.Fprintln(w, "No keywords found. Run 'gigrank scan' first.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEYWORD\tPRIORITY\tSCORE\tDEMAND\tSUPPLY\tGAP\tBUDGET")
	for _, m := range metrics {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%d\t%.2f\t%.0f\n",
			m.Keyword, m.Priority, m.OpportunityScore, m.Demand, m.Supply, m.GapRatio, m.BudgetAvg)
	}
	return tw.Flush()
}

func printOpportunities(w io.Writer, views []pipeline.OpportunityView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No opportunities match.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tACTION\tAPPLY\tPROPOSALS\tKEYWORD\tTITLE")
	for _, v := range views {
		action := string(v.Reasons.Action)
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%s\t%s\n",
			v.EffectiveScore, action, yesNo(v.ApplyNow), orDash(v.Proposals), v.Keyword, truncate(v.Title, 60))
	}
	return tw.Flush()
}

func printSummary(w io.Writer, r SummaryReport) {
	fmt.Fprintln(w, "=== Store ===")
	fmt.Fprintf(w, "  Listings:      %d\n", r.Summary.Listings)
	fmt.Fprintf(w, "  Providers:     %d\n", r.Summary.Providers)
	fmt.Fprintf(w, "  Catalog items: %d\n", r.Summary.CatalogItems)
	fmt.Fprintf(w, "  Keywords:      %d\n", r.Summary.Keywords)
	fmt.Fprintf(w, "  Opportunities: %d\n", r.Summary.Opportunities)
	fmt.Fprintf(w, "  Last ingest:   %s\n", formatTime(r.Summary.LastIngestAt))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Crawler Queue ===")
	fmt.Fprintf(w, "  Total:     %d\n", r.Queue.Total)
	fmt.Fprintf(w, "  Pending:   %d\n", r.Queue.Pending)
	fmt.Fprintf(w, "  Running:   %d\n", r.Queue.Running)
	fmt.Fprintf(w, "  Completed: %d\n", r.Queue.Completed)
	fmt.Fprintf(w, "  Error:     %d\n", r.Queue.Error)
	fmt.Fprintf(w, "  Last cycle: %s\n", formatTime(r.Queue.LastCycleAt))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
