package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"secure-relay/internal/config"
	"secure-relay/internal/guard"
	"secure-relay/internal/handler"
	"secure-relay/internal/middleware"
	"secure-relay/internal/presence"
)

// Routes holds the handlers and middleware dependencies mounted by NewRouter.
type Routes struct {
	Auth          *handler.AuthHandler
	Messages      *handler.MessageHandler
	Status        *handler.StatusHandler
	Subscriptions *handler.SubscriptionHandler
	WebSocket     *handler.WebSocketHandler
	Sessions      middleware.SessionValidator
	Guard         guard.Guard
	Registry      *presence.Registry
	Limiter       *middleware.RateLimiter
	Readiness     []handler.ReadinessCheck
}

// NewRouter mounts the REST API under /api/v1, the websocket at /ws and the
// operational endpoints at the root.
func NewRouter(cfg *config.Config, rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Guard(rt.Guard))
	r.Use(middleware.CORS(cfg.Origins()))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation, cfg.OpenAPISpecPath)))

	r.Get("/health", handler.Health(rt.Guard, rt.Registry))
	r.Get("/health/ready", handler.Ready(rt.Readiness...))
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.Auth(rt.Sessions)).Get("/ws", rt.WebSocket.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.Limiter.Middleware())

		r.Post("/auth/login", rt.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(rt.Sessions))

			r.Get("/auth/me", rt.Auth.Me)
			r.Post("/auth/logout", rt.Auth.Logout)

			r.Get("/messages/recent", rt.Messages.Recent)
			r.Get("/messages/paginated", rt.Messages.Paginated)
			r.Get("/messages/before", rt.Messages.Before)
			r.Get("/messages/{id}", rt.Messages.ByID)
			r.Delete("/messages", rt.Messages.Clear)

			r.Get("/status", rt.Status.Status)

			r.Post("/subscriptions", rt.Subscriptions.Subscribe)
			r.Delete("/subscriptions", rt.Subscriptions.Unsubscribe)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}
