package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rpggio/qasync/internal/app"
	"github.com/rpggio/qasync/internal/domain/activity"
	"github.com/rpggio/qasync/internal/domain/record"
	"github.com/rpggio/qasync/internal/stats"
)

// MarkSyncedResult reports a mark-synced call.
type MarkSyncedResult struct {
	Record        *record.SyncRecord `json:"record,omitempty"`
	AlreadySynced bool               `json:"already_synced"`
}

// NewMarkSyncedCommand creates the mark-synced command.
func NewMarkSyncedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-synced <project> <event-id> <issue-id> <category>",
		Short: "Record an event as handled outside a sync run",
		Long: `Record an event as handled outside a sync run.

Category is one of bug, data_error (or data-error), improvement. Marking an
event that already has a record is not an error; the existing record is kept.`,
		Args: exactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := record.ParseCategory(args[3])
			if err != nil {
				return WrapExitError(ExitUsage, "", err)
			}
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			if _, err := a.Projects.Get(cmd.Context(), args[0]); err != nil {
				return err
			}

			result := MarkSyncedResult{}
			rec, err := a.Records.MarkSynced(cmd.Context(), record.CommitRequest{
				Project:  args[0],
				EventID:  args[1],
				IssueID:  args[2],
				Category: category,
			})
			switch {
			case errors.Is(err, record.ErrDuplicateEvent):
				result.AlreadySynced = true
			case err != nil:
				return err
			default:
				result.Record = rec
			}

			return opts.output(cmd).Success(result, func(w io.Writer) {
				if result.AlreadySynced {
					fmt.Fprintf(w, "%s already synced\n", args[1])
					return
				}
				fmt.Fprintf(w, "Marked %s -> %s (%s)\n", rec.EventID, rec.IssueID, rec.Category)
			})
		},
	}
}

// NewStatsCommand creates the stats command. Without a project it prints
// the overview of every project.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [project]",
		Short: "Show issue counts by category",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			out := opts.output(cmd)
			if len(args) == 0 {
				list, err := a.Stats.Overview(cmd.Context())
				if err != nil {
					return err
				}
				return out.Success(list, func(w io.Writer) {
					if len(list) == 0 {
						fmt.Fprintln(w, "No projects found.")
					}
					for i := range list {
						printSummary(w, &list[i])
					}
				})
			}
			s, err := a.Stats.Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out.Success(s, func(w io.Writer) { printSummary(w, s) })
		},
	}
}

func printSummary(w io.Writer, s *stats.Summary) {
	if s.Corrupt {
		fmt.Fprintf(w, "Stats for '%s': %s\n", s.Project, color.RedString("unreadable state"))
		return
	}
	fmt.Fprintf(w, "Stats for '%s':\n", s.Project)
	if s.Scenario != nil {
		fmt.Fprintf(w, "  Scenarios: %d/%d", s.Scenario.Completed, s.Scenario.Total)
		if s.CompletionPercent != nil {
			fmt.Fprintf(w, " (%.1f%%)", *s.CompletionPercent)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  Messages synced: %d\n", s.Total)
	fmt.Fprintf(w, "  Issues: %d\n", s.Issues)
	fmt.Fprintf(w, "    - Bugs: %d\n", s.Counts.Bug)
	fmt.Fprintf(w, "    - Improvements: %d\n", s.Counts.Improvement)
	fmt.Fprintf(w, "    - Data errors: %d\n", s.Counts.DataError)
	if s.Merged > 0 {
		fmt.Fprintf(w, "  Merged into existing issues: %d\n", s.Merged)
	}
	if s.LastProcessedAt != nil {
		fmt.Fprintf(w, "  Last processed: %s\n", s.LastProcessedAt.Local().Format(time.DateTime))
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>",
		Short: "Show a project's sync state",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			st, err := a.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(st, func(w io.Writer) { printStatus(w, st) })
		},
	}
}

func printStatus(w io.Writer, st *app.Status) {
	cfg := st.Project.Config
	orNA := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}
	fmt.Fprintf(w, "Project: %s\n", st.Project.Name)
	fmt.Fprintf(w, "  Channel: %s\n", orNA(cfg.Channel))
	fmt.Fprintf(w, "  Thread: %s\n", orNA(cfg.Thread))
	fmt.Fprintf(w, "  Tracker project: %s\n", orNA(st.Project.TrackerScope()))
	fmt.Fprintf(w, "  Messages synced: %d\n", st.Stats.Total)
	fmt.Fprintf(w, "  Issues created: %d (bug %d, improvement %d, data error %d)\n",
		st.Stats.Issues, st.Stats.Counts.Bug, st.Stats.Counts.Improvement, st.Stats.Counts.DataError)

	for _, c := range st.Cursors {
		fmt.Fprintf(w, "  Cursor %s: %s (polled %s)\n", c.Channel, orNA(c.Position), c.PolledAt.Local().Format(time.DateTime))
	}
	if st.Lease != nil && st.Lease.Active(st.CheckedAt) {
		fmt.Fprintf(w, "  Lease: %s until %s\n", color.YellowString(st.Lease.Holder), st.Lease.ExpiresAt.Local().Format(time.DateTime))
	} else {
		fmt.Fprintln(w, "  Lease: free")
	}
	if n := len(st.PendingIntents); n > 0 {
		fmt.Fprintf(w, "  Pending creates: %s\n", color.YellowString("%d", n))
		for _, in := range st.PendingIntents {
			fmt.Fprintf(w, "    - %s %q\n", in.EventID, in.Title)
		}
	}
}

// NewActivityCommand creates the activity command.
func NewActivityCommand(opts *RootOptions) *cobra.Command {
	var limit int
	var typ string
	cmd := &cobra.Command{
		Use:   "activity <project>",
		Short: "Show recent project activity",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return NewExitError(ExitUsage, "--limit must be positive")
			}
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			if _, err := a.Projects.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			listOpts := activity.ListActivityOptions{Project: args[0], Limit: limit}
			if typ != "" {
				t := activity.ActivityType(typ)
				listOpts.ActivityType = &t
			}
			entries, err := a.Activity.GetRecentActivity(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s  %-20s %s\n", e.CreatedAt.Local().Format(time.DateTime), e.ActivityType, e.Summary)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	cmd.Flags().StringVar(&typ, "type", "", "only entries of this activity type")
	return cmd
}
