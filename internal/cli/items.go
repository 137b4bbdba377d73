package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"itincal/internal/model"
)

var (
	addDate     string
	addFrom     string
	addTo       string
	addPlace    string
	addLat      float64
	addLng      float64
	clearForce  bool
	listRefresh bool
	itemsJSON   bool
)

var importCmd = &cobra.Command{
	Use:   "import [date]",
	Short: "Import a day of events from the configured ICS calendars",
	Long: `Import a day of events from the configured ICS calendars.

Imported events are immutable. Re-importing the same day skips events that
are already on the timeline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if a.importer == nil {
				return errors.New("no ICS sources configured")
			}
			day, err := a.parseDay(argOr(args, 0, "today"))
			if err != nil {
				return err
			}
			items, err := a.importer.Import(ctx, day)
			if err != nil {
				return err
			}
			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			res, err := sess.ImportBatch(ctx, items)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d added, %d already present, %d invalid\n",
				day.Format(time.DateOnly), len(res.Added), len(res.Skipped), len(res.Invalid))
			printItems(out, res.Added)
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a manual item to the timeline",
	Long: `Add a manual item to the timeline.

Examples:
  itincal add "Dinner" --date 2025-06-10 --from 19:00 --to 20:30
  itincal add "Museum" --from 14:00 --to 16:00 --location "MoMA" --lat 40.7614 --lng -73.9776`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			day, err := a.parseDay(addDate)
			if err != nil {
				return err
			}
			start, err := clockOn(day, addFrom)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := clockOn(day, addTo)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			loc := model.Location{Name: addPlace}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				loc = model.At(addPlace, addLat, addLng)
				if !loc.Valid() {
					return fmt.Errorf("coordinates %v,%v out of range", addLat, addLng)
				}
			}

			item := model.TimelineItem{
				ID:         uuid.NewString(),
				Title:      args[0],
				Location:   loc,
				Start:      start,
				End:        end,
				Provenance: model.ProvenanceManual,
			}

			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			res, err := sess.Insert(ctx, item)
			if err != nil {
				return err
			}
			if !res.OK() {
				return res.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s-%s %s\n",
				item.ID, start.Format("15:04"), end.Format("15:04"), item.Title)
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an item from the timeline",
	Long:  "Remove an item from the timeline. Imported calendar events cannot be removed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			res, err := sess.Remove(ctx, args[0])
			if err != nil {
				return err
			}
			if !res.OK() {
				return res.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", res.Item.Title)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every item, imported ones included, from a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearForce {
			return errors.New("clear drops every item in the session; pass --force to confirm")
		}
		return withApp(func(ctx context.Context, a *app) error {
			sess, err := a.sessions.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			n := len(sess.Items())
			if err := sess.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d items from session %s\n", n, sess.ID)
			return nil
		})
	},
}

var activitiesCmd = &cobra.Command{
	Use:     "activities",
	Aliases: []string{"pool"},
	Short:   "List the candidate activity pool",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if listRefresh {
				a.refreshPool(ctx)
			}
			pool, err := a.activities.List(ctx)
			if err != nil {
				return err
			}
			if itemsJSON {
				return printJSON(cmd.OutOrStdout(), pool)
			}
			printActivities(cmd.OutOrStdout(), pool)
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addDate, "date", "today", "day of the item (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addFrom, "from", "", "start time (HH:MM)")
	addCmd.Flags().StringVar(&addTo, "to", "", "end time (HH:MM)")
	addCmd.Flags().StringVarP(&addPlace, "location", "l", "", "location name")
	addCmd.Flags().Float64Var(&addLat, "lat", 0, "latitude")
	addCmd.Flags().Float64Var(&addLng, "lng", 0, "longitude")
	_ = addCmd.MarkFlagRequired("from")
	_ = addCmd.MarkFlagRequired("to")

	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "confirm clearing")

	activitiesCmd.Flags().BoolVar(&listRefresh, "refresh", false, "reload the pool from the configured feeds first")
	activitiesCmd.Flags().BoolVar(&itemsJSON, "json", false, "print JSON instead of a table")
}

// clockOn parses HH:MM as a wall-clock time on day.
func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want HH:MM", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func printItems(w io.Writer, items []model.TimelineItem) {
	if len(items) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tTITLE\tLOCATION\tID")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.Start.Format("15:04"), it.End.Format("15:04"), it.Title, it.Location.Name, it.ID)
	}
	tw.Flush()
}

func printActivities(w io.Writer, pool []model.CandidateActivity) {
	if len(pool) == 0 {
		fmt.Fprintln(w, "No candidate activities.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDURATION\tLOCATION\tCATEGORY")
	for _, act := range pool {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			act.ID, act.Title, act.Duration, act.Location.Name, act.Category)
	}
	tw.Flush()
}
