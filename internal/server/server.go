// Package server provides the HTTP API for Shiori.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/indexer"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/labeller"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/scheduler"
	"github.com/hyperjump/shiori/internal/search"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/internal/watcher"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Services are the components the API serves. Lookup and Scheduler may be nil.
type Services struct {
	Engine    *search.Engine
	Indexer   *indexer.Indexer
	Lookup    keyword.PaperIndex
	Store     storage.Store
	Matcher   *groups.Matcher
	Learner   *learning.Learner
	Labeller  *labeller.Labeller
	Scheduler *scheduler.Scheduler
}

// Server is the HTTP server for the Shiori API.
type Server struct {
	Services
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
	watcher *watcher.Watcher
}

// NewServer creates a server with the given dependencies.
func NewServer(svc Services, cfg *config.Config, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		Services: svc,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/interactions", s.handleInteraction)

		r.Post("/graph/expand", s.handleGraphExpand)
		r.Post("/graph/learn", s.handleGraphLearn)
		r.Post("/graph/sync-groups", s.handleSyncGroups)

		r.Get("/groups", s.handleGroupsList)
		r.Post("/groups/reload", s.handleGroupsReload)

		r.Post("/papers", s.handleIndexPaper)
		r.Get("/papers/lookup", s.handlePaperLookup)
		r.Post("/citations", s.handleAddCitation)
		r.Post("/citations/analyze", s.handleCitationAnalyze)
		r.Get("/citations/ego-graph/{paperID}", s.handleEgoGraph)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts background jobs and the group file watcher, then serves HTTP
// until the server stops.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Groups.Watch && s.Matcher != nil && s.Matcher.Path() != "" {
		s.watcher = watcher.NewWatcher([]string{s.Matcher.Path()}, func(path string) {
			_ = s.Matcher.Reload()
		}, watcher.WithLogger(s.logger))
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Warn("group file watch disabled", zap.Error(err))
			s.watcher = nil
		}
	}
	if s.Scheduler != nil {
		if err := s.registerJobs(); err != nil {
			return err
		}
		s.Scheduler.Start()
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) registerJobs() error {
	if spec := s.config.Learner.Schedule; spec != "" && s.Learner != nil {
		err := s.Scheduler.Add("learn", spec, func(ctx context.Context) error {
			_, err := s.Learner.Run(ctx, s.Store, s.Learner.Window())
			return err
		})
		if err != nil {
			return err
		}
	}
	if spec := s.config.Labeller.Schedule; spec != "" && s.Labeller != nil {
		err := s.Scheduler.Add("label", spec, func(ctx context.Context) error {
			_, err := s.Labeller.Run(ctx, s.Store)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server, the watcher and the scheduler.
func (s *Server) Stop(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.Scheduler != nil {
		s.Scheduler.Stop(10 * time.Second)
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
