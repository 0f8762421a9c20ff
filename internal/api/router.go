package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/api/middleware"
	"github.com/btylerw/ChatterBox/internal/config"
	"github.com/btylerw/ChatterBox/internal/handlers"
	"github.com/btylerw/ChatterBox/internal/hub"
	"github.com/btylerw/ChatterBox/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, broker store.Broker, h *hub.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the SPA runs on its own origin during development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler := handlers.NewHandler(db, h, broker, cfg.JWTSecret)
	auth := middleware.NewAuthMiddleware(db, cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", handler.Root)
	r.Get("/health", handler.Health)
	r.Post("/auth/create-account", handler.CreateAccount)
	r.Post("/auth/login", handler.Login)

	// WebSocket channel endpoint. Browsers cannot set an Authorization
	// header on the upgrade request, so membership is checked per chat
	// instead.
	r.Get("/ws/{chatID}", handler.ServeChat)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/users/get_users_by_id", handler.GetUsersByID)
		r.Get("/users/search", handler.SearchUsers)
		r.Get("/chat/list", handler.ListChats)
		r.Post("/chat/create-chat", handler.CreateChat)
		r.Post("/chat/update-chat", handler.UpdateChat)
	})

	return r
}
