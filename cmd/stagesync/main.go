package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockedby/stagesync/internal/applications"
	"github.com/blockedby/stagesync/internal/catalog"
	"github.com/blockedby/stagesync/internal/config"
	"github.com/blockedby/stagesync/internal/database"
	"github.com/blockedby/stagesync/internal/events"
	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/favsync"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
	"github.com/blockedby/stagesync/internal/repository"
	"github.com/blockedby/stagesync/internal/search"
	"github.com/blockedby/stagesync/internal/session"
	"github.com/blockedby/stagesync/internal/status"
	"github.com/blockedby/stagesync/internal/web"
	"github.com/blockedby/stagesync/internal/web/handlers"
)

func main() {
	token := flag.String("token", "", "store this bearer token as the signed-in session")
	email := flag.String("email", "", "store this email in the signed-in profile (with -token)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Str("backend", cfg.BackendURL).Msg("starting stagesync")

	// 3. Setup context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4. Open local storage
	db, err := database.New(ctx, cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local store")
	}
	defer func() { _ = db.Close() }()

	kv, err := repository.NewKVRepository(db.GORM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare key-value store")
	}

	sess := session.New(kv)
	if *token != "" {
		profile := models.UserProfile{Email: *email}
		if err := sess.Save(ctx, *token, profile); err != nil {
			log.Fatal().Err(err).Msg("failed to store session")
		}
		log.Info().Str("email", *email).Msg("session stored")
	}
	if _, err := sess.Token(ctx); err != nil {
		log.Warn().Err(err).Msg("no session token, catalog calls will fail with auth errors")
	}

	// 5. Catalog client
	client, err := catalog.NewClient(catalog.Config{
		BaseURL:  cfg.BackendURL,
		Timeout:  cfg.HTTPTimeout(),
		PageSize: cfg.PageSize,
		Limiter:  catalog.NewRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
		Log:      log,
	}, sess)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog client")
	}

	// 6. Favorites and event fan-out
	store := favorites.NewStore(kv, log, favorites.Options{})

	hub := events.NewHub(log)
	go hub.Run()
	defer hub.Stop()
	store.Subscribe(hub)

	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer func() { _ = nc.Drain() }()
			store.Subscribe(events.NewNATSPublisher(nc, cfg.FavoritesSubject, log))
		}
	}

	// 7. Screens
	stages := search.NewController(client, log)
	stages.Subscribe(func(st search.State) { hub.Publish(events.EventStagesState, st) })

	resolver := status.NewResolver(client, cfg.StatusWorkers, log)
	favScreen := favsync.New(store, client, resolver, sess, log)
	store.Subscribe(favScreen)
	favScreen.Subscribe(func(snap favsync.Snapshot) { hub.Publish(events.EventFavoritesState, snap) })

	appsScreen := applications.NewController(client, log)

	// 8. Local host
	server := web.NewServer(&web.Config{
		Port:        cfg.HTTPPort,
		CORSOrigins: cfg.CORSOrigins,
	}, log, hub)
	server.RegisterStagesHandler(handlers.NewStagesHandler(stages))
	server.RegisterFavoritesHandler(handlers.NewFavoritesHandler(favScreen, store))
	server.RegisterApplicationsHandler(handlers.NewApplicationsHandler(appsScreen))

	if err := server.Listen(); err != nil {
		log.Fatal().Err(err).Msg("failed to bind http host")
	}
	go func() {
		if err := server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()
	log.Info().Str("url", server.BaseURL()).Msg("http host ready")

	// 9. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	stages.Close()
	favScreen.Deactivate()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http host shutdown")
	}

	log.Info().Msg("shutdown complete")
}
