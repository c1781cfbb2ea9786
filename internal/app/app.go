package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/auth"
	"github.com/vovakirdan/eventure-server/internal/config"
	"github.com/vovakirdan/eventure-server/internal/core"
	"github.com/vovakirdan/eventure-server/internal/core/redisbus"
	"github.com/vovakirdan/eventure-server/internal/service/comments"
	"github.com/vovakirdan/eventure-server/internal/service/conversations"
	"github.com/vovakirdan/eventure-server/internal/service/events"
	"github.com/vovakirdan/eventure-server/internal/service/notifications"
	"github.com/vovakirdan/eventure-server/internal/store"
	"github.com/vovakirdan/eventure-server/internal/store/postgres"
	"github.com/vovakirdan/eventure-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/eventure-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	bus             *redisbus.Bus
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	hub := core.NewHub(logger)

	// Pushes go through Redis when configured so every instance sees them.
	var publisher core.Publisher = hub
	var bus *redisbus.Bus
	if cfg.RedisURL != "" {
		bus, err = redisbus.New(ctx, cfg.RedisURL, hub, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		publisher = bus
		logger.Info().Msg("redis broadcast relay enabled")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	dispatcher := notifications.New(st, logger)
	services := transporthttp.Services{
		Auth:          auth.NewService(st, jwtConfig),
		Conversations: conversations.New(st, publisher, logger),
		Notifications: dispatcher,
		Events:        events.New(st, dispatcher, logger),
		Comments:      comments.New(st, dispatcher, logger),
	}

	server := transporthttp.NewServer(hub, services, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		bus:             bus,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseDriver == config.DriverPostgres {
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	if a.bus != nil {
		go func() {
			if err := a.bus.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("redis broadcast relay stopped")
			}
		}()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
