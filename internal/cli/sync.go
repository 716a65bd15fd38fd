package cli

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rpggio/qasync/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <project>",
		Short: "File every unsynced feedback message once",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			orch, err := a.Orchestrator(nil)
			if err != nil {
				return err
			}
			out := opts.output(cmd)
			out.VerboseLog("syncing %s as %s", args[0], orch.Holder())

			rep, err := orch.Sync(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := out.Success(rep, func(w io.Writer) {
				printOutcomes(w, rep)
				printTotals(w, rep)
			}); err != nil {
				return err
			}
			return failedEvents(rep)
		},
	}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var maxCycles int
	cmd := &cobra.Command{
		Use:   "watch <project> [interval-seconds]",
		Short: "Poll a project and sync new messages until interrupted",
		Args:  rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var interval time.Duration
			if len(args) == 2 {
				secs, err := strconv.Atoi(args[1])
				if err != nil || secs <= 0 {
					return NewExitError(ExitUsage, fmt.Sprintf("invalid interval %q: must be a positive number of seconds", args[1]))
				}
				interval = time.Duration(secs) * time.Second
			}
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			out := opts.output(cmd)
			orch, err := a.Orchestrator(cyclePrinter(out))
			if err != nil {
				return err
			}

			rep, err := orch.Watch(cmd.Context(), args[0], interval, maxCycles)
			if err != nil {
				return err
			}
			return out.Success(rep, func(w io.Writer) { printTotals(w, rep) })
		},
	}
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop after this many cycles (0 = until interrupted)")
	return cmd
}

// NewWatchAllCommand creates the watch-all command.
func NewWatchAllCommand(opts *RootOptions) *cobra.Command {
	var maxCycles, intervalSecs int
	cmd := &cobra.Command{
		Use:   "watch-all [project...]",
		Short: "Watch several projects at once (all projects when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if intervalSecs < 0 {
				return NewExitError(ExitUsage, "--interval must not be negative")
			}
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			out := opts.output(cmd)
			orch, err := a.Orchestrator(cyclePrinter(out))
			if err != nil {
				return err
			}

			reports, watchErr := orch.WatchAll(cmd.Context(), args, time.Duration(intervalSecs)*time.Second, maxCycles)
			var done []*syncer.Report
			for _, r := range reports {
				if r != nil {
					done = append(done, r)
				}
			}
			if err := out.Success(done, func(w io.Writer) {
				for _, r := range done {
					printTotals(w, r)
				}
			}); err != nil {
				return err
			}
			return watchErr
		},
	}
	cmd.Flags().IntVar(&intervalSecs, "interval", 0, "poll interval in seconds (default: per project, then config)")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop after this many cycles (0 = until interrupted)")
	return cmd
}

// cyclePrinter streams per-cycle outcomes in text mode. Watch-all calls it
// from several workers.
func cyclePrinter(out *OutputFormatter) func(*syncer.Report) {
	if out.JSON() {
		return nil
	}
	var mu sync.Mutex
	return func(rep *syncer.Report) {
		if len(rep.Outcomes) == 0 && !out.Verbose {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out.Writer, "[%s] %s: %d fetched\n", rep.FinishedAt.Local().Format(time.TimeOnly), rep.Project, rep.Fetched)
		printOutcomes(out.Writer, rep)
	}
}

func printOutcomes(w io.Writer, rep *syncer.Report) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	for _, o := range rep.Outcomes {
		switch o.Kind {
		case syncer.OutcomeCreated:
			fmt.Fprintf(w, "  %s [%s] %s -> %s\n", ok("✅"), o.Category, o.Title, o.IssueID)
		case syncer.OutcomeMerged:
			fmt.Fprintf(w, "  %s [%s] %s -> merged into %s\n", ok("✅"), o.Category, o.Title, o.IssueID)
		case syncer.OutcomeAdopted:
			fmt.Fprintf(w, "  %s [%s] %s -> recovered %s\n", ok("✅"), o.Category, o.Title, o.IssueID)
		case syncer.OutcomeDuplicate:
			fmt.Fprintf(w, "  %s %s already synced by another run\n", color.YellowString("="), o.EventID)
		case syncer.OutcomeFailed:
			fmt.Fprintf(w, "  %s %s: %s\n", bad("❌"), o.EventID, o.Error)
		}
	}
}

func printTotals(w io.Writer, rep *syncer.Report) {
	fmt.Fprintf(w, "%s: %d created, %d merged", rep.Project, rep.Created, rep.Merged)
	if rep.Adopted > 0 {
		fmt.Fprintf(w, ", %d recovered", rep.Adopted)
	}
	fmt.Fprintf(w, ", %d skipped", rep.Skipped+rep.Duplicates)
	if rep.Failed > 0 {
		fmt.Fprintf(w, ", %s", color.RedString("%d failed", rep.Failed))
	}
	if rep.Cycles > 1 || rep.CycleErrors > 0 {
		fmt.Fprintf(w, " over %d cycles", rep.Cycles)
		if rep.CycleErrors > 0 {
			fmt.Fprintf(w, " (%d failed)", rep.CycleErrors)
		}
	}
	if rep.Interrupted {
		fmt.Fprint(w, " (interrupted)")
	}
	fmt.Fprintln(w)
}

// failedEvents turns failed events of a one-shot sync into a failure exit.
// They stay unsynced and are retried by the next run.
func failedEvents(rep *syncer.Report) error {
	if rep.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d events failed; rerun to retry them", rep.Failed, rep.Fetched))
}
