package routes

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/handlers"
	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	BaseURL      string
	CORSOrigins  []string
	RateLimitRPM int
	Auth         mw.AuthConfig
	Logger       *slog.Logger
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(cfg RouterConfig, h *Handlers) (chi.Router, huma.API) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.RequestContext)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-Request-ID",
			mw.HeaderClient, mw.HeaderTimestamp, mw.HeaderSignature,
		},
		ExposedHeaders:   []string{"X-Request-ID", mw.VersionHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB)
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	if cfg.RateLimitRPM > 0 {
		router.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
	}

	switch {
	case cfg.Auth.AllowUnauthenticated:
		cfg.Logger.Warn("authentication optional - ALLOW_UNAUTHENTICATED is set")
	case cfg.Auth.APISecret == "" && cfg.Auth.JWTSecret == "":
		cfg.Logger.Warn("no authentication configured - protected routes will refuse every request")
	default:
		cfg.Logger.Info("authentication enabled",
			"signed_headers", cfg.Auth.APISecret != "",
			"bearer_tokens", cfg.Auth.JWTSecret != "",
		)
	}

	api := humachi.New(router, NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, cfg.Auth))
	Register(api, h)

	// Raw SSE route, authenticated by the chi middleware.
	router.With(mw.Auth(cfg.Auth)).Get(handlers.EventsPath, h.Events.StreamEvents)

	return router, api
}
