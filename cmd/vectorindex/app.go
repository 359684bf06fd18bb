package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/config"
	"github.com/fyrsmithlabs/vectorindex/internal/credential"
	"github.com/fyrsmithlabs/vectorindex/internal/embeddings"
	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/store"
	"github.com/fyrsmithlabs/vectorindex/internal/store/qdrant"
	"github.com/fyrsmithlabs/vectorindex/internal/store/sqlite"
	"github.com/fyrsmithlabs/vectorindex/internal/telemetry"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

// app is a fully wired index with its supporting services.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	registry *prometheus.Registry
	model    embeddings.Model
	pool     *pool.Pool[store.Conn]
	index    *vectorindex.Index

	// secrets handed to components; wiped once everything is closed.
	secrets []*credential.Credential
	closers []func() error
}

// newApp wires the components in dependency order. On failure everything
// already started is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Console logging first so telemetry setup can report problems.
	a.logger, err = logging.NewLogger(&cfg.Logging, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.closers = append(a.closers, a.logger.Sync)
	a.closers = append(a.closers, a.wipeSecrets)
	zl := a.logger.Underlying()

	a.tel, err = telemetry.New(ctx, &cfg.Telemetry, zl)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		return a.tel.Shutdown(context.Background())
	})

	modelCfg := cfg.Embeddings.ModelConfig()
	a.secrets = append(a.secrets, modelCfg.APIKey)
	a.model, err = embeddings.New(modelCfg, zl)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return embeddings.Close(a.model) })

	dial, err := a.openBackend(ctx, zl)
	if err != nil {
		return nil, err
	}

	a.pool, err = pool.New[store.Conn](cfg.Pool, dial, pool.WithLogger(zl))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.pool.Close)

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		vectorindex.NewPoolCollector(a.pool.Stats),
	)
	observer := vectorindex.Observers(
		vectorindex.NewMetricsObserver(a.registry),
		vectorindex.NewTraceObserver(a.tel.TracerProvider()),
		vectorindex.NewLogObserver(zl),
	)

	a.index, err = vectorindex.New(a.model, cfg.Index, a.pool,
		vectorindex.WithObserver(observer),
		vectorindex.WithLogger(zl),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context, zl *zap.Logger) (pool.DialFunc[store.Conn], error) {
	switch a.cfg.Store.Backend {
	case config.BackendQdrant:
		qcfg := a.cfg.Store.Qdrant.Backend()
		a.secrets = append(a.secrets, qcfg.APIKey)
		s, err := qdrant.Open(ctx, qcfg, zl)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s.Dial, nil
	default:
		s, err := sqlite.Open(a.cfg.Store.SQLite, zl)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s.Dial, nil
	}
}

// Close releases resources in reverse start order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) wipeSecrets() error {
	for _, c := range a.secrets {
		c.Wipe()
	}
	return nil
}

// loadApp loads the configuration named by the global flags and wires it.
func loadApp(ctx context.Context, g *globals) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		if cfg.Logging.Level, err = logging.LevelFromString(g.logLevel); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	return newApp(ctx, cfg)
}
