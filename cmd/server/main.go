package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parlor/internal/api"
	"github.com/eldtechnologies/parlor/internal/broker"
	"github.com/eldtechnologies/parlor/internal/config"
	"github.com/eldtechnologies/parlor/internal/handlers"
	"github.com/eldtechnologies/parlor/internal/session"
	"github.com/eldtechnologies/parlor/internal/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Conversation store: Postgres when configured, SQLite otherwise.
	var conversations store.ConversationStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		conversations = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		conversations = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer conversations.Close()

	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	sessions := session.NewStore()
	defer sessions.Close()

	// Every known room gets an empty buffer so the broker accepts
	// messages for it from the first connection on.
	buffers := broker.NewBufferSet()
	rooms, err := conversations.ListRooms(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("listing rooms failed")
	}
	for _, room := range rooms {
		buffers.Register(room.ID)
	}
	logger.Info().Int("rooms", len(rooms)).Msg("room buffers initialized")

	b := broker.New(sessions, conversations, buffers, cfg.MessageBlockSize, logger)
	h := handlers.New(conversations, sessions, buffers, redisStore, cfg.SessionTTL, logger)
	router := api.NewRouter(logger, h, b, sessions, redisStore)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
		// No blanket read/write timeouts: they would sever long-lived
		// websocket connections.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting parlor server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
