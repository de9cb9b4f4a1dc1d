// Package app configures and runs the sync engine: storage, provider
// adapters, the orchestrator, the scheduler and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"calsync/internal/config"
	"calsync/internal/provider"
	"calsync/internal/provider/caldav"
	"calsync/internal/provider/rest"
	"calsync/internal/storage"
	"calsync/internal/storage/memory"
	pgstore "calsync/internal/storage/postgres"
	syncengine "calsync/internal/sync"
	"calsync/pkg/httpserver"
	"calsync/pkg/logger"
	"calsync/pkg/postgres"
	"github.com/robfig/cron/v3"
)

func Run(cfg *config.Config) {
	l := logger.New(cfg.Log.Level, cfg.App.Env)

	ctx := context.Background()

	// Repository
	var (
		events storage.EventStore
		tokens storage.TokenStore
	)
	if cfg.PG.Enabled {
		pg, err := postgres.New(ctx, l, cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
		if err != nil {
			l.Error(fmt.Errorf("app - Run - postgres.New: %w", err).Error())
			os.Exit(1)
		}
		defer pg.Close()

		store, err := pgstore.New(ctx, pg, l)
		if err != nil {
			l.Error(fmt.Errorf("app - Run - pgstore.New: %w", err).Error())
			os.Exit(1)
		}
		events, tokens = store, store
	} else {
		store := memory.New()
		events, tokens = store, store
	}

	// Provider adapters
	adapters, err := buildAdapters(cfg, l)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - buildAdapters: %w", err).Error())
		os.Exit(1)
	}
	if len(adapters) == 0 {
		l.Warn("no providers enabled, sync runs will be no-ops")
	}

	// Orchestrator
	orchestrator := syncengine.New(
		syncengine.Config{
			RangePast:    cfg.Sync.RangePast,
			RangeFuture:  cfg.Sync.RangeFuture,
			MaxParallel:  cfg.Sync.MaxParallel,
			PushRetries:  cfg.Sync.PushRetries,
			RetryBackoff: cfg.Sync.RetryBackoff,
			Policy:       syncengine.ParsePolicy(cfg.Sync.ConflictPolicy),
		},
		adapters, events, tokens, l,
	)

	// Scheduler
	if cfg.Sync.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Sync.Schedule, func() {
			if err := orchestrator.Start(ctx); err != nil {
				l.Debug("scheduled sync skipped", logger.Err(err))
			}
		})
		if err != nil {
			l.Error(fmt.Errorf("app - Run - cron.AddFunc: %w", err).Error())
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
	}

	// HTTP Server
	router := newRouter(cfg, l, orchestrator)
	httpServer := httpserver.New(router,
		httpserver.Addr(cfg.HTTP.IP, cfg.HTTP.Port),
		httpserver.ReadTimeout(cfg.HTTP.Timeout),
		httpserver.WriteTimeout(cfg.HTTP.Timeout),
	)

	l.Info("app started", "name", cfg.App.Name, "version", cfg.App.Version)

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case err := <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err).Error())
	}

	// Shutdown
	if err := httpServer.Shutdown(); err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err).Error())
	}
}

func buildAdapters(cfg *config.Config, l *logger.Logger) ([]provider.Adapter, error) {
	var adapters []provider.Adapter

	if p := cfg.Providers.Rest; p.Enabled {
		adapters = append(adapters, rest.New(rest.Config{
			BaseURL:     p.BaseURL,
			Account:     p.Account,
			AccountZone: p.Timezone,
			PageSize:    p.PageSize,
			Timeout:     p.Timeout,
		}, provider.StaticToken(p.Token), l))
	}

	if p := cfg.Providers.CalDAV; p.Enabled {
		a, err := caldav.New(caldav.Config{
			BaseURL:     p.BaseURL,
			Account:     p.Account,
			AccountZone: p.Timezone,
			Timeout:     p.Timeout,
		}, provider.BasicAuth(p.User, p.Password), l)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}
