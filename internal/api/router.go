package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/savegress/recordvault/internal/config"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, handlers *Handlers) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		handlers: handlers,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Patient-facing endpoints, authenticated by the external IdP's JWT
		r.Group(func(r chi.Router) {
			r.Use(OwnerAuth(&s.config.Server))

			r.Route("/reports", func(r chi.Router) {
				r.Post("/", s.handlers.IngestReport)
				r.Get("/", s.handlers.ListReports)
			})

			r.Route("/grants", func(r chi.Router) {
				r.Post("/", s.handlers.IssueGrant)
				r.Get("/", s.handlers.ListGrants)
				r.Post("/{id}/revoke", s.handlers.RevokeGrant)
			})

			r.Get("/audit/events", s.handlers.ListAuditEvents)
		})

		// Viewer endpoint: the capability token is the only credential
		r.Get("/timeline/{token}", s.handlers.ReadTimeline)

		r.Get("/stats", s.handlers.GetStats)
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}
