package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"litlink/internal/chat"
	"litlink/internal/config"
	"litlink/internal/db"
	"litlink/internal/logging"
	"litlink/internal/metrics"
	mw "litlink/internal/middleware"
	"litlink/internal/notification"
	"litlink/internal/report"
	"litlink/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("loading configuration failed")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabase(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logging.Fatal().Err(err).Msg("connecting to postgres failed")
	}
	defer database.Close()
	if err := database.AutoMigrate(); err != nil {
		logging.Fatal().Err(err).Msg("schema migration failed")
	}
	logging.Info().Msg("connected to postgres")

	// Redis bridges events between instances. An empty addr disables the
	// bridge; a configured-but-unreachable one is a startup error.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Fatal().Err(err).Msg("connecting to redis failed")
		}
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	m := metrics.New()

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	notificationStore := notification.NewPostgresStore(database.Conn)
	conversationStore := chat.NewPostgresStore(database.Conn)

	registry := chat.NewRegistry()
	hub := chat.NewHub(registry, conversationStore, notificationStore, m, redisClient)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("hub stopped")
		}
	}()
	go func() {
		if err := hub.SubscribeEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("event bridge stopped")
		}
	}()

	fanout := notification.NewFanout(notificationStore, userRepo, hub, m)

	userHandler := user.NewHandler(userService, fanout)
	chatHandler := chat.NewHandler(hub, userService)
	notificationHandler := notification.NewHandler(notificationStore)
	reportHandler := report.NewHandler(report.NewRepository(database.Conn), fanout)

	authMiddleware := mw.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Public routes.
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	// The websocket gate authenticates the connection itself so failures
	// close the upgraded socket with a policy-violation code instead of a
	// plain 401.
	r.Get("/ws", chatHandler.ServeWs)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/search", userHandler.SearchUsers)

		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/messages", chatHandler.GetChatHistory)

		r.Post("/api/reports", reportHandler.Create)

		r.Get("/api/notifications", notificationHandler.List)
		r.Get("/api/notifications/unread-count", notificationHandler.UnreadCount)
		r.Post("/api/notifications/{id}/read", notificationHandler.MarkRead)
		r.Post("/api/notifications/{id}/archive", notificationHandler.Archive)
	})

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Use(mw.RequireAdmin)

		r.Get("/api/admin/reports", reportHandler.ListOpen)
		r.Post("/api/admin/reports/{id}/resolve", reportHandler.Resolve)
		r.Post("/api/admin/users/{id}/ban", userHandler.Ban)
		r.Post("/api/admin/users/{id}/suspend", userHandler.Suspend)
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	logging.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal().Err(err).Msg("http server failed")
	}
	logging.Info().Msg("server stopped")
}
