// File: internal/server/server.go

// Package server exposes the browser session over HTTP: admission
// middleware, the action endpoints, and the live event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/config"
	"github.com/robit-man/web-scrape-service/internal/events"
	"github.com/robit-man/web-scrape-service/internal/frames"
	"github.com/robit-man/web-scrape-service/internal/gate"
	"github.com/robit-man/web-scrape-service/internal/ratelimit"
	"github.com/robit-man/web-scrape-service/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wires the admission pipeline in front of the session manager and
// serves the HTTP surface.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	limiter *ratelimit.Limiter
	gate    *gate.Gate
	bus     *events.Bus
	manager *session.Manager
	frames  *frames.Store

	httpServer *http.Server
}

// New assembles a Server from its already-constructed components.
func New(cfg *config.Config, logger *zap.Logger, limiter *ratelimit.Limiter, g *gate.Gate,
	bus *events.Bus, manager *session.Manager, frameStore *frames.Store) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		limiter: limiter,
		gate:    g,
		bus:     bus,
		manager: manager,
		frames:  frameStore,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server().Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: cfg.Server().ReadHeaderTimeout,
	}
	return s
}

// Router builds the chi router with the full middleware chain. Exposed so
// tests can serve the exact production handler tree through httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsMiddleware)
	r.Use(noStoreMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.authMiddleware)

	r.Get("/health", s.handleHealth)

	r.Post("/session/start", s.handleSessionStart)
	r.Post("/session/close", s.handleSessionClose)

	r.Post("/navigate", s.handleNavigate)
	r.Post("/click", s.handleClick)
	r.Post("/click_xy", s.handleClickXY)
	r.Post("/type", s.handleType)
	r.Post("/scroll", s.handleScroll)
	r.Post("/history", s.handleHistory)

	r.Get("/dom", s.handleDOM)
	r.Get("/screenshot", s.handleScreenshot)

	r.Get("/events", s.handleEventStream)
	r.Get("/events/recent", s.handleRecentEvents)
	r.Get("/frames/{name}", s.handleFrame)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, schemas.E(schemas.CodeNotFound, "unknown route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, schemas.E(schemas.CodeNotFound, "method not allowed"))
	})
	return r
}

// Start runs the HTTP listener and the background maintenance loops until
// ctx is canceled, then drains everything: intake stops, the open session is
// torn down, and the maintenance loops exit.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.limiter.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		s.frames.Run(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received.")
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("http server: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server().ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown did not finish cleanly.", zap.Error(err))
	}
	if _, err := s.manager.Close(shutdownCtx); err != nil {
		s.logger.Warn("Closing the browser session during shutdown failed.", zap.Error(err))
	}

	bgCancel()
	wg.Wait()
	s.logger.Info("Server stopped.")
	return serveErr
}

// respond writes payload as JSON with the given status.
func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response.", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respondError maps err's classification to its HTTP status and writes the
// error envelope. Unclassified errors surface as internal without detail.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	code := schemas.CodeOf(err)
	if code == schemas.CodeInternal {
		s.logger.Error("Internal error.", zap.Error(err))
	}
	if code == schemas.CodeRateLimited {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(ratelimit.RetryHint/time.Second)))
	}
	s.respond(w, schemas.HTTPStatus(code), schemas.ErrorResponse{
		OK:      false,
		Error:   code,
		Message: schemas.MessageOf(err),
	})
}
