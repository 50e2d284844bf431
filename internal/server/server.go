package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/handlers"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	app        *App
	log        *slog.Logger
}

// New builds the App for cfg and a Server around it.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewWithApp(app, cfg.ServerPort, log), nil
}

// NewWithApp constructs a Server with the standard middleware and routes.
func NewWithApp(app *App, port int, log *slog.Logger) *Server {
	authMiddleware := handlers.RequireAuth(app.Auth)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		var limit func(http.Handler) http.Handler
		if app.Limiter != nil {
			limit = app.Limiter.Middleware
		}
		handlers.AuthRouter(r, app.Auth, limit)
	})
	router.Route("/profile", func(r chi.Router) {
		handlers.ProfileRouter(r, app.Users, authMiddleware)
	})

	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		app:        app,
		log:        log,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the App's connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.app.Close())
}
