// Package cli implements the qasync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rpggio/qasync/internal/app"
	"github.com/rpggio/qasync/internal/config"
	"github.com/rpggio/qasync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	app      *app.App
	closeLog func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the qasync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qasync",
		Short: "Sync QA feedback threads into tracker issues",
		Long: `qasync turns feedback messages from a chat channel into tracker issues.

Each message is classified, checked against existing issues, and filed
exactly once; progress is kept in a local state file so repeated or
interrupted runs never file the same message twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $QASYNC_CONFIG_PATH or ~/.qa-sync/config.yaml)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewReconfigureCommand(opts))
	cmd.AddCommand(NewScenariosCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewActivityCommand(opts))
	cmd.AddCommand(NewMarkSyncedCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewWatchAllCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, args, stdout, stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if closeErr := opts.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	if code == ExitFailure && isCobraUsageError(err) {
		code = ExitUsage
	}
	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr}
	out.Error(code, err.Error())
	return code
}

// isCobraUsageError matches the errors cobra raises itself before any
// command runs.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "required flag", "invalid argument", "if any flags in the group"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openApp loads config and opens the state backend once per process.
func (o *RootOptions) openApp(cmd *cobra.Command) (*app.App, error) {
	if o.app != nil {
		return o.app, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "loading config", err)
	}
	logger, closeLog := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Path:    cfg.Log.Path,
		Verbose: o.Verbose,
	}, cmd.ErrOrStderr())

	a, err := app.New(cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	o.app = a
	o.closeLog = closeLog
	return a, nil
}

func (o *RootOptions) close() error {
	var errs []error
	if o.app != nil {
		errs = append(errs, o.app.Close())
		o.app = nil
	}
	if o.closeLog != nil {
		errs = append(errs, o.closeLog())
		o.closeLog = nil
	}
	return errors.Join(errs...)
}

// exactArgs is cobra.ExactArgs reporting ExitUsage.
func exactArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.ExactArgs(n))
}

func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return usageArgs(cobra.RangeArgs(lo, hi))
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return WrapExitError(ExitUsage, "", err)
		}
		return nil
	}
}
