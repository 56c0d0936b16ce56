package bootstrap

import (
	"context"

	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	transport "github.com/turtacn/SafeScan/internal/interfaces/http"
)

// Serve runs the HTTP API until ctx is cancelled, then drains it within the
// configured shutdown timeout.
func (a *App) Serve(ctx context.Context, version string) error {
	srv := transport.NewServer(a.Config.Server, a.Handler(version), a.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}

// Reload applies the hot-safe parts of a changed configuration.
func (a *App) Reload(cfg *config.Config) {
	if cfg.Log.Level != a.Config.Log.Level {
		logging.SetLevel(cfg.Log.Level)
		a.Logger.Info("log level changed", logging.String("level", cfg.Log.Level))
	}
	a.Config.Log.Level = cfg.Log.Level
}
