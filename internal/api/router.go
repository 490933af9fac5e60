package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parlor/internal/api/middleware"
	"github.com/eldtechnologies/parlor/internal/broker"
	"github.com/eldtechnologies/parlor/internal/handlers"
	"github.com/eldtechnologies/parlor/internal/session"
	"github.com/eldtechnologies/parlor/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, b *broker.Broker, sessions *session.Store, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware first to capture all requests.
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024))

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	// Login is the only unauthenticated application route.
	limiter := middleware.NewLoginRateLimiter(redisClientOrNil(redisStore), logger)
	r.With(limiter.Middleware).Post("/login", h.Login)

	// Session-gated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessions))

		r.Get("/chat", h.ListRooms)
		r.Post("/chat", h.CreateRoom)
		r.Get("/chat/{roomID}", h.GetRoom)
		r.Get("/chat/{roomID}/messages", h.GetLastConversation)
		r.Get("/logout", h.Logout)
		r.Get("/profile", h.Profile)
	})

	// The broker runs its own cookie check so the upgrade can be refused
	// before the protocol switch.
	r.Get("/ws", b.HandleWS)

	return r
}

func redisClientOrNil(s *store.RedisStore) *redis.Client {
	if s == nil {
		return nil
	}
	return s.Client()
}
