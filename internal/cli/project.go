package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rpggio/qasync/internal/domain/project"
)

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			list, err := a.Projects.List(cmd.Context())
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No projects found. Run 'qasync create <project>' first.")
					return
				}
				fmt.Fprintln(w, "Projects:")
				for _, p := range list {
					if p.Corrupt {
						fmt.Fprintf(w, "  - %s %s\n", p.Name, color.RedString("(unreadable state)"))
						continue
					}
					channel := p.Channel
					if channel == "" {
						channel = "N/A"
					}
					fmt.Fprintf(w, "  - %s (channel: %s, records: %d)\n", p.Name, channel, p.RecordCount)
				}
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <project>",
		Short: "Show a project's stored configuration",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.Projects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(p, func(w io.Writer) { printJSON(w, p) })
		},
	}
}

// configFlags binds per-field project config flags.
type configFlags struct {
	SiteURL           string
	PRDRef            string
	Channel           string
	Thread            string
	TrackerProjectID  string
	TrackerProjectURL string
	Interval          int
}

func (f *configFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.SiteURL, "site-url", "", "site under test")
	cmd.Flags().StringVar(&f.PRDRef, "prd", "", "PRD reference")
	cmd.Flags().StringVar(&f.Channel, "channel", "", "source channel id")
	cmd.Flags().StringVar(&f.Thread, "thread", "", "source thread id (timestamp of the parent message)")
	cmd.Flags().StringVar(&f.TrackerProjectID, "tracker-project", "", "tracker project id")
	cmd.Flags().StringVar(&f.TrackerProjectURL, "tracker-url", "", "tracker project URL")
	cmd.Flags().IntVar(&f.Interval, "interval", 0, "default poll interval in seconds")
}

// changed returns pointers for the flags given on the command line.
func (f *configFlags) changed(cmd *cobra.Command) project.ReconfigureRequest {
	var req project.ReconfigureRequest
	str := func(name string, v *string) *string {
		if cmd.Flags().Changed(name) {
			return v
		}
		return nil
	}
	req.SiteURL = str("site-url", &f.SiteURL)
	req.PRDRef = str("prd", &f.PRDRef)
	req.Channel = str("channel", &f.Channel)
	req.Thread = str("thread", &f.Thread)
	req.TrackerProjectID = str("tracker-project", &f.TrackerProjectID)
	req.TrackerProjectURL = str("tracker-url", &f.TrackerProjectURL)
	if cmd.Flags().Changed("interval") {
		req.PollIntervalSeconds = &f.Interval
	}
	return req
}

// NewCreateCommand creates the create command.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	flags := &configFlags{}
	cmd := &cobra.Command{
		Use:   "create <project> [config]",
		Short: "Create a project",
		Long: `Create a project.

The optional config argument is an inline JSON or YAML document, or @path
to read one from a file. Flags override fields of the document.

Example:
  qasync create demo '{"channel":"C1","tracker_project_id":"P1"}'
  qasync create demo --channel C1 --thread 1700000000.000100`,
		Args: rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg project.Config
			if len(args) == 2 {
				parsed, err := parseConfigDoc(args[1])
				if err != nil {
					return WrapExitError(ExitUsage, "invalid config", err)
				}
				cfg = parsed
			}
			applyConfig(&cfg, flags.changed(cmd))

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.Projects.Create(cmd.Context(), project.CreateRequest{Name: args[0], Config: cfg})
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(p, func(w io.Writer) {
				fmt.Fprintf(w, "Project '%s' created.\n", p.Name)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewReconfigureCommand creates the reconfigure command.
func NewReconfigureCommand(opts *RootOptions) *cobra.Command {
	flags := &configFlags{}
	cmd := &cobra.Command{
		Use:   "reconfigure <project>",
		Short: "Change a project's configuration",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.changed(cmd)
			req.Name = args[0]

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.Projects.Reconfigure(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(p, func(w io.Writer) {
				fmt.Fprintf(w, "Project '%s' updated.\n", p.Name)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewScenariosCommand creates the scenarios command.
func NewScenariosCommand(opts *RootOptions) *cobra.Command {
	var total, completed int
	cmd := &cobra.Command{
		Use:   "scenarios <project>",
		Short: "Record scenario checklist progress",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			p, err := a.Projects.SetScenarioProgress(cmd.Context(), args[0], project.ScenarioProgress{Total: total, Completed: completed})
			if err != nil {
				return err
			}
			return opts.output(cmd).Success(p.Scenarios, func(w io.Writer) {
				fmt.Fprintf(w, "Scenarios for '%s': %d/%d\n", p.Name, completed, total)
			})
		},
	}
	cmd.Flags().IntVar(&total, "total", 0, "total scenario rows")
	cmd.Flags().IntVar(&completed, "completed", 0, "checked scenario rows")
	cmd.MarkFlagRequired("total")
	return cmd
}

func parseConfigDoc(arg string) (project.Config, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return project.Config{}, err
		}
		data = b
	}
	// YAML is a superset of JSON, so one decoder covers both.
	var cfg project.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return project.Config{}, err
	}
	return cfg, nil
}

func applyConfig(cfg *project.Config, req project.ReconfigureRequest) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.SiteURL, req.SiteURL)
	set(&cfg.PRDRef, req.PRDRef)
	set(&cfg.Channel, req.Channel)
	set(&cfg.Thread, req.Thread)
	set(&cfg.TrackerProjectID, req.TrackerProjectID)
	set(&cfg.TrackerProjectURL, req.TrackerProjectURL)
	if req.PollIntervalSeconds != nil {
		cfg.PollIntervalSeconds = *req.PollIntervalSeconds
	}
}
