// Package server assembles the authentication server: it opens the
// database, applies migrations, builds the auth service and runs the HTTP
// and gRPC servers until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tracing"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
	hs "github.com/dmitrijs2005/authkeeper/internal/server/http"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	holder          *dbx.Holder
	metrics         *metrics.Metrics
	authService     *services.AuthService
	shutdownTracing tracing.ShutdownFunc
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	m := metrics.New()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     c.TracingEnabled,
		Endpoint:    c.TracingEndpoint,
		SampleRate:  c.TracingSampleRate,
		Environment: c.AppEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	opts := c.DatabaseOptions()
	opts.OnRetry = m.DBRetry
	holder := dbx.NewHolder(opts, logger)

	db, err := holder.Get(ctx)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.RunMigrations {
		if err := rm.RunMigrations(ctx, db.DB()); err != nil {
			_ = holder.Reset()
			_ = shutdownTracing(ctx)
			return nil, fmt.Errorf("migrations error: %w", err)
		}
	}

	as, err := services.NewAuthService(db, rm, c, logger)
	if err != nil {
		_ = holder.Reset()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	return &App{
		config:          c,
		logger:          logger,
		holder:          holder,
		metrics:         m,
		authService:     as,
		shutdownTracing: shutdownTracing,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := hs.NewHandler(app.authService, app.logger, app.metrics, app.config.IsProduction())
	s := hs.NewHTTPServer(app.config.HTTPAddr, app.logger, h, app.holder, app.metrics, app.config.ShutdownTimeout)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.holder)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or one of the servers
// fails, then releases the database and flushes traces.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "env", app.config.AppEnv)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	defer cancel()

	if err := app.holder.Reset(); err != nil {
		app.logger.Error(shutdownCtx, "close database", "error", err)
	}
	if err := app.shutdownTracing(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown tracing", "error", err)
	}

	app.logger.Info(shutdownCtx, "App stopped")
}
