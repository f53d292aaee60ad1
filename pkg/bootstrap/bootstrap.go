// Package bootstrap is the startup sequence shared by every long-running
// binary: .env, config, logger, database and dev migrations.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	"github.com/angelmondragon/towndrop-backend/pkg/migrate"
)

// Runtime holds what every binary gets after startup. Close releases
// registered resources in reverse order, the database last.
type Runtime struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	closers []func() error
}

func Start(ctx context.Context, service string) (*Runtime, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return StartWithConfig(ctx, service, cfg)
}

func StartWithConfig(ctx context.Context, service string, cfg *config.Config) (*Runtime, error) {
	logg := NewLogger(service, cfg.App)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		closers: []func() error{dbClient.Close},
	}, nil
}

func NewLogger(service string, app config.AppConfig) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(app.LogLevel),
		Format:      logger.ParseFormat(app.LogFormat),
		WarnStack:   app.LogWarnStack,
		Fields:      map[string]any{"env": app.Env},
	})
}

func (r *Runtime) OnClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	return err
}

// Shutdown closes the runtime and logs anything that failed to close.
func (r *Runtime) Shutdown(ctx context.Context) {
	if err := r.Close(); err != nil {
		r.Logger.Error(ctx, "shutdown.close_failed", err)
	}
}

// SignalContext is canceled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal logs a startup failure and exits. Use it only before a Runtime exists
// or after it has been shut down.
func Fatal(service, msg string, err error) {
	logger.New(logger.Options{ServiceName: service}).Error(context.Background(), msg, err)
	os.Exit(1)
}
