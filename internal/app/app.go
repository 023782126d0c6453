package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/ban"
	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/geo"
	"github.com/vovakirdan/counselchat/internal/maintenance"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/counselchat/internal/transport/http"
)

const initialLoadTimeout = 10 * time.Second

// App wires together core, storage and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	scheduler       *maintenance.Scheduler
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	timing := session.Timing{
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}

	// Resume tokens stay valid exactly as long as a silent session survives.
	authService := auth.NewService(st, st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      timing.DisconnectLimit(),
	}, cfg.RequireAccessCode)

	bans := ban.NewRegistry(cfg.BanSalt)
	loadCtx, cancel := context.WithTimeout(context.Background(), initialLoadTimeout)
	defer cancel()
	if err := bans.Load(loadCtx, st); err != nil {
		return nil, multierr.Append(fmt.Errorf("load bans: %w", err), st.Close())
	}
	logger.Info().Int("bans", bans.Len()).Msg("ban list loaded")

	table, err := geo.NewTable(cfg.GeoTable)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("geo table: %w", err), st.Close())
	}

	hub := core.NewHub(core.Config{
		Timing:              timing,
		SweepInterval:       cfg.SweepInterval,
		BanCloseGrace:       cfg.BanCloseGrace,
		RoomFullRedirectURL: cfg.RoomFullRedirectURL,
	}, core.Deps{
		Auth:      authService,
		Store:     st,
		Bans:      bans,
		Geo:       table,
		GeoPolicy: geo.NewPolicy(cfg.GeoAllowedCountries),
		Logger:    logger,
	})

	scheduler := maintenance.New(st, bans, logger,
		maintenance.WithReloadSchedule(cfg.BanReloadSchedule),
		maintenance.WithPurgeSchedule(cfg.BanPurgeSchedule),
	)

	return &App{
		server:          transporthttp.NewServer(hub, authService, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		scheduler:       scheduler,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(); err != nil {
		return multierr.Append(fmt.Errorf("start maintenance: %w", err), a.cleanup())
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Stop the hub first so open sockets get their close frames.
		stopHub()
		<-a.hub.Done()
		runErr = multierr.Append(a.server.Shutdown(shutdownCtx), <-serverErr)
	}

	stopHub()
	<-a.hub.Done()
	<-a.scheduler.Stop().Done()
	return multierr.Append(runErr, a.cleanup())
}

// cleanup closes database and other resources.
func (a *App) cleanup() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
		return err
	}
	a.log.Info().Msg("store closed")
	return nil
}
