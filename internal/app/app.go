package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	apphttp "github.com/yungbote/plansync-backend/internal/http"
	"github.com/yungbote/plansync-backend/internal/observability"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  *Clients
	Repos    Repos
	Services Services
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(log, cfg, clients)
	serviceset, err := wireServices(log, cfg, clients, reposet)
	if err != nil {
		_ = clients.Close(ctx)
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, serviceset, clients)
	mw := wireMiddleware(log, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset, mw),
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP API, and the index consumer unless withConsumer is
// false, until ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context, withConsumer bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
		return a.Server.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		a.Log.Info("Shutting down HTTP server...")
		return a.Server.Shutdown(shutdownCtx)
	})
	if withConsumer {
		g.Go(func() error { return a.consume(gctx) })
	}
	return g.Wait()
}

// Consume runs only the index consumer.
func (a *App) Consume(ctx context.Context) error {
	return a.consume(ctx)
}

func (a *App) consume(ctx context.Context) error {
	err := a.Services.Consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event consumer: %w", err)
	}
	return nil
}

// Reindex rebuilds one plan, or every plan when id is empty.
func (a *App) Reindex(ctx context.Context, id string) (services.ReindexReport, error) {
	if id != "" {
		if err := a.Services.Reconcile.ReindexOne(ctx, id); err != nil {
			return services.ReindexReport{Scanned: 1, Failed: 1}, err
		}
		return services.ReindexReport{Scanned: 1, Indexed: 1}, nil
	}
	return a.Services.Reconcile.ReindexAll(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Clients.Close(ctx); err != nil {
		a.Log.Warn("closing clients", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Log.Sync()
}
