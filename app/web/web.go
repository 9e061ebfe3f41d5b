// Package web implements the local dashboard for the application tracker.
// It is a thin rendering collaborator: every view is recomputed from the
// repository snapshot through the query package, the server holds no state
// of its own beyond wiring.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/apptrack/app/domain"
	"github.com/umputun/apptrack/app/repo"
)

//go:embed templates/index.html
var templatesFS embed.FS

// Repo defines repository operations the dashboard depends on
type Repo interface {
	All() []domain.JobApplication
	Get(id string) (domain.JobApplication, bool)
	Add(prefill repo.Prefill) string
	Update(app domain.JobApplication) error
	Delete(id string) error
}

// Fetcher retrieves raw page text for import-by-link
type Fetcher interface {
	Fetch(ctx context.Context, urlString string) (string, error)
}

// Prefs stores per-column display widths
type Prefs interface {
	Widths() map[string]float64
	SetWidth(column string, width float64) error
}

// Config holds server configuration
type Config struct {
	Repo      Repo
	Fetcher   Fetcher
	Prefs     Prefs
	Version   string
	ImportRPS float64 // rate limit for import-by-link, 0 for the default
}

// Server represents the dashboard web server
type Server struct {
	repo      Repo
	fetcher   Fetcher
	prefs     Prefs
	version   string
	importRPS float64
	templates *template.Template
}

// New creates a Server from the config
func New(cfg Config) (*Server, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("web server initialization failed: Repo is required")
	}

	templates, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}

	importRPS := cfg.ImportRPS
	if importRPS <= 0 {
		importRPS = 1 // one outbound fetch per second is plenty for a human
	}

	return &Server{
		repo:      cfg.Repo,
		fetcher:   cfg.Fetcher,
		prefs:     cfg.Prefs,
		version:   cfg.Version,
		importRPS: importRPS,
		templates: templates,
	}, nil
}

// Run starts the web server and blocks until the context is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(100),
		rest.AppInfo("apptrack", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(1024*1024), // 1MB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// dashboard route
	router.HandleFunc("GET /", s.handleIndex)

	// import fetches remote pages, keep it slow even if the UI misbehaves
	importLimiter := tollbooth.NewLimiter(s.importRPS, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})

	// JSON API for the UI and programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /applications", s.handleList)
		api.HandleFunc("POST /applications", s.handleAdd)
		api.HandleFunc("PUT /applications/{id}", s.handleUpdate)
		api.HandleFunc("DELETE /applications/{id}", s.handleDelete)
		api.With(tollbooth.HTTPMiddleware(importLimiter)).HandleFunc("POST /import", s.handleImport)
		api.HandleFunc("GET /meta", s.handleMeta)
		api.HandleFunc("GET /columns", s.handleColumns)
		api.HandleFunc("PUT /columns/{id}", s.handleSetColumn)
	})

	return router
}
