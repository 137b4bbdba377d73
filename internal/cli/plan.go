package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"itincal/internal/model"
	"itincal/internal/planner"
)

var (
	planJSON      bool
	suggestPolicy string
	suggestLimit  int
)

var gapsCmd = &cobra.Command{
	Use:   "gaps [date]",
	Short: "List the open windows of a day",
	Long: `List the open windows of a day (YYYY-MM-DD, default today).

Examples:
  itincal gaps
  itincal gaps 2025-06-10 --session alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			day, err := a.parseDay(argOr(args, 0, "today"))
			if err != nil {
				return err
			}
			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			gaps := a.planner.Gaps(sess.Day(day), day)
			if planJSON {
				return printJSON(cmd.OutOrStdout(), gaps)
			}
			printGaps(cmd.OutOrStdout(), gaps)
			return nil
		})
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [date]",
	Short: "Rank candidate activities for every open window of a day",
	Long: `Rank candidate activities for every open window of a day.

Examples:
  itincal suggest 2025-06-10
  itincal suggest --policy distance-first --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			day, err := a.parseDay(argOr(args, 0, "today"))
			if err != nil {
				return err
			}
			opts := a.planner.Options()
			if suggestPolicy != "" {
				if opts.Policy, err = planner.ParsePolicy(suggestPolicy); err != nil {
					return err
				}
			}
			if suggestLimit > 0 {
				opts.MaxSuggestions = suggestLimit
			}

			a.refreshPool(ctx)
			pool, err := a.activities.List(ctx)
			if err != nil {
				return err
			}
			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}

			out := a.planner.With(opts).Suggest(sess.Items(), day, pool)
			if planJSON {
				return printJSON(cmd.OutOrStdout(), sanitizeSuggestions(out))
			}
			printSuggestions(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{gapsCmd, suggestCmd} {
		c.Flags().BoolVar(&planJSON, "json", false, "print JSON instead of a table")
	}
	suggestCmd.Flags().StringVarP(&suggestPolicy, "policy", "p", "", "ranking policy: duration-first, distance-first, itinerary-fit")
	suggestCmd.Flags().IntVarP(&suggestLimit, "limit", "n", 0, "suggestions per gap (default from config)")
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGaps(w io.Writer, gaps []model.TimeGap) {
	if len(gaps) == 0 {
		fmt.Fprintln(w, "No open windows.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tMINUTES\tUSABLE\tCONTEXT\tPREV\tNEXT")
	for _, g := range gaps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			g.Start.Format("15:04"), g.End.Format("15:04"),
			g.DurationMinutes, g.OptimalMinutes, g.DayContext,
			itemTitle(g.Before), itemTitle(g.After))
	}
	tw.Flush()
}

func printSuggestions(w io.Writer, out []planner.GapSuggestions) {
	if len(out) == 0 {
		fmt.Fprintln(w, "No open windows.")
		return
	}
	for _, gs := range out {
		fmt.Fprintf(w, "%s-%s (%d min, %s)\n",
			gs.Gap.Start.Format("15:04"), gs.Gap.End.Format("15:04"),
			gs.Gap.DurationMinutes, gs.Gap.DayContext)
		if len(gs.Suggestions) == 0 {
			fmt.Fprintln(w, "  nothing fits")
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, r := range gs.Suggestions {
			fmt.Fprintf(tw, "  %.1f\t%s\t%s-%s\t%s\t%s\t%s\n",
				r.Score, r.Activity.Title,
				r.SuggestedStart.Format("15:04"), r.SuggestedEnd.Format("15:04"),
				r.DurationFit, formatKm(r.DistanceToPrevKm), formatKm(r.DistanceToNextKm))
		}
		tw.Flush()
	}
}

func itemTitle(it *model.TimelineItem) string {
	if it == nil {
		return "-"
	}
	return it.Title
}

func formatKm(d *float64) string {
	switch {
	case d == nil:
		return "-"
	case math.IsInf(*d, 0):
		return "?km"
	default:
		return fmt.Sprintf("%.1fkm", *d)
	}
}

// sanitizeSuggestions replaces +Inf values, which JSON cannot encode, with
// nil pointers or -1 for utilization.
func sanitizeSuggestions(in []planner.GapSuggestions) []planner.GapSuggestions {
	out := make([]planner.GapSuggestions, 0, len(in))
	for _, gs := range in {
		fits := make([]model.FitResult, 0, len(gs.Suggestions))
		for _, r := range gs.Suggestions {
			if math.IsInf(r.Utilization, 0) {
				r.Utilization = -1
			}
			if r.DistanceToPrevKm != nil && math.IsInf(*r.DistanceToPrevKm, 0) {
				r.DistanceToPrevKm = nil
			}
			if r.DistanceToNextKm != nil && math.IsInf(*r.DistanceToNextKm, 0) {
				r.DistanceToNextKm = nil
			}
			fits = append(fits, r)
		}
		out = append(out, planner.GapSuggestions{Gap: gs.Gap, Suggestions: fits})
	}
	return out
}
