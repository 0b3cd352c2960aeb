// Package server wires the HTTP API around the document service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-geo-elements/internal/api"
	"github.com/joeblew999/plat-geo-elements/internal/db"
	"github.com/joeblew999/plat-geo-elements/internal/humastar"
	"github.com/joeblew999/plat-geo-elements/internal/service"
	"github.com/joeblew999/plat-geo-elements/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// NoDB disables the DuckDB journal.
	NoDB   bool
	Logger *slog.Logger
}

// Server is the map document HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	links   *humastar.LinkSet
	journal *db.Journal
	docs    *service.DocumentService
	logger  *slog.Logger
}

// New creates a new server. A database that cannot be opened disables the
// journal instead of failing.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	links := humastar.NewLinkSet()

	humaConfig := huma.DefaultConfig("plat-geo-elements API", "1.0.0")
	humaConfig.Info.Description = "Open declarative map documents and inspect the styles their elements build."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		links:   links,
		logger:  cfg.Logger,
	}

	if !cfg.NoDB {
		s.openJournal()
	}

	opts := service.Options{
		DataDir: cfg.DataDir,
		Bus:     service.NewEventBus(),
		Logger:  cfg.Logger,
	}
	if s.journal != nil {
		opts.Journal = s.journal
	}
	s.docs = service.NewDocumentService(opts)

	s.routes()
	return s
}

func (s *Server) openJournal() {
	j, err := db.Open(context.Background(), db.Config{DataDir: s.config.DataDir, DBName: "elements"})
	if err != nil {
		s.logger.Warn("database unavailable, journal disabled", "error", err)
		return
	}
	s.journal = j
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Documents returns the document service.
func (s *Server) Documents() *service.DocumentService {
	return s.docs
}

// Close detaches every open document and closes the database.
func (s *Server) Close() error {
	s.docs.CloseAll()
	if s.journal == nil {
		return nil
	}
	return db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, &api.Services{Documents: s.docs})
	api.NewInfoHandler(s.config.DataDir, s.journal != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.journal).RegisterRoutes(s.humaAPI)

	renderer, err := templates.New()
	if err != nil {
		s.logger.Warn("fragment templates unavailable, events carry no html", "error", err)
	}
	api.NewEventHandler(s.docs, renderer).RegisterRoutes(s.humaAPI)

	// Links are derived from the registered operations.
	s.links.Build(s.humaAPI)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/docs", http.StatusFound)
}
