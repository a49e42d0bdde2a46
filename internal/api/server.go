// Package api is the HTTP admin surface: platform registry CRUD, resolution
// calls, import driving, export streaming. All catalog semantics live in the
// core packages; handlers translate between HTTP and those calls.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/auth"
	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/db"
	"github.com/reelmatch/reelmatch/internal/export"
	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/jobs"
	"github.com/reelmatch/reelmatch/internal/platforms"
	"github.com/reelmatch/reelmatch/internal/repository"
	"github.com/reelmatch/reelmatch/internal/resolver"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

type Server struct {
	config     *config.Config
	db         *db.DB
	platforms  *platforms.Service
	objectRepo *repository.ObjectRepository
	importRepo *repository.ImportRepository
	importer   *importer.Importer
	view       *scoring.View
	exporter   *export.Exporter
	queue      *jobs.Queue
	authSvc    *auth.Service
	wsHub      *WSHub
	log        *zap.SugaredLogger
	router     chi.Router
	http       *http.Server
}

type Deps struct {
	Config     *config.Config
	DB         *db.DB
	Platforms  *platforms.Service
	ObjectRepo *repository.ObjectRepository
	ImportRepo *repository.ImportRepository
	Importer   *importer.Importer
	View       *scoring.View
	Exporter   *export.Exporter
	Queue      *jobs.Queue
	Auth       *auth.Service
	Log        *zap.SugaredLogger
}

func NewServer(d Deps) *Server {
	s := &Server{
		config:     d.Config,
		db:         d.DB,
		platforms:  d.Platforms,
		objectRepo: d.ObjectRepo,
		importRepo: d.ImportRepo,
		importer:   d.Importer,
		view:       d.View,
		exporter:   d.Exporter,
		queue:      d.Queue,
		authSvc:    d.Auth,
		wsHub:      NewWSHub(),
		log:        d.Log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/ws", s.handleWebSocket)
	r.Mount("/api/v1/auth", auth.NewHandler(s.db.DB, s.authSvc).Router())

	authmw := auth.NewMiddleware(s.authSvc)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authmw.RequireAuth)
		r.Use(s.rateLimit(float64(s.config.RateLimitRPS), s.config.RateLimitRPS*2))

		r.Route("/platforms", func(r chi.Router) {
			r.Get("/", s.handleListPlatforms)
			r.Get("/{selector}", s.handleGetPlatform)
			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireAdmin)
				r.Post("/", s.handleCreatePlatform)
				r.Put("/{id}", s.handleUpdatePlatform)
				r.Delete("/{id}", s.handleDeletePlatform)
			})
		})
		r.Route("/platform-groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Get("/{id}/platforms", s.handleGroupMembers)
			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireAdmin)
				r.Post("/", s.handleCreateGroup)
				r.Delete("/{id}", s.handleDeleteGroup)
			})
		})

		r.Post("/objects", s.handleInsertObject)
		r.Get("/objects/{id}", s.handleGetObject)
		r.Post("/objects/{id}/merge-into/{target}", s.handleMergeObjects)
		r.Get("/search", s.handleSearch)

		r.Route("/imports", func(r chi.Router) {
			r.Get("/", s.handleListImports)
			r.Post("/", s.handleUploadImport)
			r.Get("/{id}", s.handleGetImport)
			r.Put("/{id}/file", s.handleReuploadImport)
			r.Get("/{id}/logs", s.handleImportLogs)
			r.Get("/{id}/links", s.handleImportLinks)
			r.Post("/{id}/process", s.handleProcessImport)
		})

		r.Get("/exports/{type}", s.handleExport)

		r.With(authmw.RequireAdmin).Post("/admin/refresh", s.handleRefresh)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// withStore runs fn in a transaction with bounded transient retry, the same
// execution model the import pipeline uses.
func (s *Server) withStore(ctx context.Context, fn func(store *repository.TxStore) error) error {
	return s.db.WithRetry(ctx, s.config.ImportMaxRetries, func(tx *sql.Tx) error {
		return fn(repository.NewTxStore(tx))
	})
}

func (s *Server) engine(store resolver.Store) *resolver.Engine {
	return resolver.New(store, s.log.Named("resolver"))
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("http server listening", "port", s.config.Port)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
