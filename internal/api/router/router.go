package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-assistant/internal/http/middleware"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Sessions       *handlers.SessionsHandler
	VoiceSocket    *handlers.VoiceSocket
	ChatStream     *handlers.ChatStream
	MetricsHandler http.Handler
	// Readiness reports dependency health for /ready. Nil means always ready.
	Readiness          func(r *http.Request) error
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		public.Get("/ready", readyCheck(cfg.Readiness))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Group(func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter, cfg.Logger))
		}

		if cfg.Sessions != nil {
			api.Route("/sessions", func(r chi.Router) {
				r.Post("/", cfg.Sessions.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", cfg.Sessions.Get)
					r.Delete("/", cfg.Sessions.Close)
					r.Post("/turns", cfg.Sessions.SubmitTurn)
					r.Post("/audio", cfg.Sessions.SubmitAudio)
					r.Get("/transcript", cfg.Sessions.Transcript)
					r.Get("/appointments", cfg.Sessions.Appointments)
					if cfg.VoiceSocket != nil {
						r.Get("/ws", cfg.VoiceSocket.ServeHTTP)
					}
				})
			})
		}

		if cfg.ChatStream != nil {
			api.Route("/chat/{id}", func(r chi.Router) {
				r.Post("/messages", cfg.ChatStream.Message)
				r.Post("/stream", cfg.ChatStream.ServeHTTP)
			})
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyCheck(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(r); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
