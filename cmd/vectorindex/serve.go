package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	vihttp "github.com/fyrsmithlabs/vectorindex/internal/http"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

The default table is created on startup. Prometheus metrics are served on
/metrics and a store health check on /health.

Examples:
  vectorindex serve
  VECTORINDEX_HTTP__PORT=9000 vectorindex serve --config ./config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g)
		},
	}
}

func runServe(ctx context.Context, g *globals) error {
	a, err := loadApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	zl := a.logger.Underlying()

	if h := a.tel.Health(); h.Degraded {
		a.logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}
	if err := a.pool.Warm(ctx); err != nil {
		a.logger.Warn(ctx, "warming connection pool", zap.Error(err))
	}
	if err := a.index.EnsureIndex(ctx, a.index.Table()); err != nil {
		return fmt.Errorf("creating table %q: %w", a.index.Table(), err)
	}

	srv, err := vihttp.NewServer(a.index, zl, vihttp.Config{
		Host:      a.cfg.HTTP.Host,
		Port:      a.cfg.HTTP.Port,
		BodyLimit: a.cfg.HTTP.BodyLimit,
	},
		vihttp.WithGatherer(a.registry),
		vihttp.WithMetrics(vihttp.NewHTTPMetrics(a.tel.MeterProvider(), zl)),
	)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	a.logger.Info(ctx, "serving",
		zap.String("addr", a.cfg.HTTP.Addr()),
		zap.String("backend", a.cfg.Store.Backend),
		zap.String("table", a.index.Table()),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}
