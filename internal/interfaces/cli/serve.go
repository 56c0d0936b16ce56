package cli

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/bootstrap"
	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := cliCtx.Config
			if addr != "" {
				if err := applyListenAddr(&cfg.Server, addr); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap.New(ctx, cfg, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					cliCtx.Logger.Error("shutdown incomplete", logging.Err(err))
				}
			}()

			if path := cliCtx.Options.ConfigPath; path != "" {
				if err := config.Watch(path, a.Reload, func(err error) {
					cliCtx.Logger.Warn("ignoring invalid config change", logging.Err(err))
				}); err != nil {
					cliCtx.Logger.Warn("config watch disabled", logging.Err(err))
				}
			}

			cliCtx.Logger.Info("starting SafeScan API", logging.String("version", Version), logging.String("addr", cfg.Server.Addr()))
			return a.Serve(ctx, Version)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port, overrides server.host and server.port")
	return cmd
}

// applyListenAddr overrides the configured host and port with host:port.
func applyListenAddr(cfg *config.ServerConfig, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.InvalidParam("invalid --addr " + addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return errors.InvalidParam("invalid port in --addr " + addr)
	}
	cfg.Host = host
	cfg.Port = port
	return nil
}
