package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/logger"
)

// sweepInterval is how often state of expired web sessions is released.
const sweepInterval = 10 * time.Minute

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string
	Flow           *auth.Flow
	Sessions       SessionManager
	Clients        ClientFactory
	PlaylistPrefix string
	Logger         *log.Logger
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Flow == nil || cfg.Sessions == nil || cfg.Clients == nil {
		return nil, errors.New("server needs a flow, a session store and a client factory")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: NewHandlers(cfg.Flow, cfg.Sessions, cfg.Clients, cfg.PlaylistPrefix, cfg.Logger),
		logger:   cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.Middleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/", h.Home)

	// Auth routes
	s.router.Get("/login", h.Login)
	s.router.Get("/callback", h.Callback)
	s.router.Get("/authState", h.AuthState)
	s.router.Post("/logout", h.Logout)

	// Playlist routes
	s.router.Get("/playerList", h.PlayerList)
	s.router.Post("/playlistTracks", h.PlaylistTracks)
	s.router.Post("/shufflePlaylists", h.ShufflePlaylists)
	s.router.Post("/createPlaylist", h.CreatePlaylist)
	s.router.Get("/tracks", h.Tracks)

	// Swipe routes
	s.router.Route("/swipe", func(r chi.Router) {
		r.Post("/", h.StartSwipe)
		r.Get("/", h.Swipe)
		r.Post("/like", h.Like)
		r.Post("/dislike", h.Dislike)
		r.Post("/undo", h.Undo)
		r.Post("/resume", h.Resume)
		r.Post("/finish", h.Finish)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", "http://"+s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.sweepLoop(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.handlers.sweep(ctx); n > 0 {
				s.logger.Info("released expired sessions", "count", n)
			}
		}
	}
}
