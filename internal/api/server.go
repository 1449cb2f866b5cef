// Package api exposes clientdesk over a JSON HTTP API.
package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dispatch"
	"github.com/foxzi/clientdesk/internal/generate"
	"github.com/foxzi/clientdesk/internal/ipfilter"
	"github.com/foxzi/clientdesk/internal/metrics"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/variables"
)

// Version is reported by the health endpoint
var Version = "dev"

const authCacheTTL = time.Minute

// Deps are the collaborators used by the handlers
type Deps struct {
	Users      *repository.Users
	Clients    *repository.Clients
	Templates  *repository.Templates
	Invoices   *repository.Invoices
	Dispatcher *dispatch.Dispatcher
	Tracker    *dispatch.Tracker
	Generator  generate.Generator
	Engine     *variables.Engine

	// Optional
	Sandbox    *SandboxServer
	Management *ManagementServer
	IPFilter   *ipfilter.Filter

	MetricsHandler http.Handler
	MetricsPath    string

	// RunContext is the parent of background dispatch runs
	RunContext context.Context
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     config.ServerConfig
	logger     *slog.Logger
	authCache  *gocache.Cache
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if deps.Generator == nil {
		deps.Generator = generate.Unavailable{}
	}
	if deps.Engine == nil {
		deps.Engine = variables.New()
	}
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}

	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		logger:    logger.With("component", "api"),
		authCache: gocache.New(authCacheTTL, 5*time.Minute),
		startTime: time.Now(),
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	if s.deps.IPFilter != nil {
		s.router.Use(s.deps.IPFilter.Middleware)
	}
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// No auth required
	s.router.Get("/health", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Method(http.MethodGet, path, s.deps.MetricsHandler)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.handleMe)
		r.Put("/me/brand", s.handleUpdateBrand)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", s.handleListClients)
			r.Post("/", s.handleCreateClient)
			r.Get("/{id}", s.handleGetClient)
			r.Put("/{id}", s.handleUpdateClient)
			r.Delete("/{id}", s.handleDeleteClient)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Post("/validate", s.handleValidateTemplate)
			r.Post("/generate", s.handleGenerateTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Post("/{id}/preview", s.handlePreviewTemplate)
		})

		r.Get("/variables", s.handleVariables)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", s.handleListInvoices)
			r.Post("/", s.handleCreateInvoice)
			r.Get("/{id}", s.handleGetInvoice)
			r.Put("/{id}", s.handleUpdateInvoice)
			r.Delete("/{id}", s.handleDeleteInvoice)
		})

		r.Post("/dispatch", s.handleDispatch)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Post("/{id}/cancel", s.handleCancelRun)
		})

		if s.deps.Sandbox != nil {
			s.deps.Sandbox.RegisterRoutes(r)
		}
		if s.deps.Management != nil {
			s.deps.Management.RegisterRoutes(r)
		}
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// UseTLS serves HTTPS with the given configuration
func (s *Server) UseTLS(cfg *tls.Config) {
	s.httpServer.TLSConfig = cfg
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	if s.httpServer.TLSConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	if s.config.TLS.Enabled {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	return s.httpServer.Shutdown(ctx)
}
