package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rpggio/qasync/internal/mcp"
	"github.com/rpggio/qasync/internal/transport"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var mode, host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tool server over stdio or HTTP",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			cfg := a.Config
			if cmd.Flags().Changed("transport") {
				cfg.Transport.Mode = mode
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			server := mcp.NewServer(mcp.Config{Services: mcp.AppServices(a), Logger: a.Logger})
			switch cfg.Transport.Mode {
			case "stdio":
				return transport.RunStdio(cmd.Context(), server, a.Logger)
			case "http":
				if cfg.Server.APIKey == "" && !isLoopback(cfg.Server.Host) {
					a.Logger.Warn("serving without an API key on a non-loopback address", "host", cfg.Server.Host)
				}
				addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
				handler := transport.NewHandler(server, transport.HTTPOptions{APIKey: cfg.Server.APIKey})
				return transport.ServeHTTP(cmd.Context(), addr, handler, a.Logger)
			default:
				return NewExitError(ExitUsage, fmt.Sprintf("invalid transport %q: must be stdio or http", cfg.Transport.Mode))
			}
		},
	}
	cmd.Flags().StringVar(&mode, "transport", "", "stdio or http (default from config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP listen port (default from config)")
	return cmd
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
