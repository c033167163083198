// Package controlapi is the HTTP+SSE surface external callers (chat
// gateways, the agentctl CLI, a cron daemon) use to drive session runs:
// create sessions, send messages, resolve pending tool decisions, cancel
// runs, and tail the event stream. It is the one entrypoint into the
// session-runtime core.
package controlapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/auth"
	"github.com/forgewright/agentcore/internal/checkpoint"
	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/observability"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/runmanager"
	"github.com/forgewright/agentcore/internal/sessionactor"
	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
	"github.com/forgewright/agentcore/internal/toolexec"
)

// Config holds a Server's collaborators.
type Config struct {
	Addr         string
	Sessions     *sqlite.Store
	Checkpoints  *checkpoint.Store
	Manager      *runmanager.Manager
	Pending      *pendingtools.Registry
	Bus          *eventbus.Bus
	Actor        *sessionactor.Actor
	Executor     *toolexec.Executor
	Providers    map[string]agentloop.LLMProvider
	DefaultModel string
	Approval     pendingtools.Policy
	Auth         *auth.Service
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// Server is the Control API's HTTP server.
type Server struct {
	cfg       Config
	startTime time.Time

	httpServer   *http.Server
	httpListener net.Listener
}

// New builds a Server from its collaborators. Call Start to begin serving.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, startTime: time.Now()}
}

// Handler builds the routed, middleware-wrapped http.Handler, separated
// from Start so tests can exercise it with httptest without binding a
// socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/healthz", s.handleHealth) // alias matching teacher's /healthz naming
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/config", s.handleConfig)
	mux.HandleFunc("GET /v1/openapi.json", s.handleOpenAPI)

	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /v1/sessions/{id}", s.handlePatchSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/sessions/{id}/events/ws", s.handleEventsWS)
	mux.HandleFunc("GET /v1/sessions/{id}/tools/pending", s.handleGetPendingTools)
	mux.HandleFunc("POST /v1/sessions/{id}/tools/decisions", s.handlePostToolDecisions)
	mux.HandleFunc("GET /v1/sessions/{id}/tools/metrics", s.handleToolMetrics)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handlePostCancel)
	mux.HandleFunc("POST /v1/sessions/{id}/model", s.handlePostModel)

	var handler http.Handler = mux
	handler = s.withLogging(handler)
	handler = s.withAuth(handler)
	return handler
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /metrics and the liveness probes stay unauthenticated so a load
		// balancer or Prometheus scraper never needs a bearer token.
		switch r.URL.Path {
		case "/metrics", "/v1/health", "/v1/healthz":
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.Auth == nil || !s.cfg.Auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, newAPIError(http.StatusUnauthorized, "missing_bearer_token", "missing bearer token"))
			return
		}
		principal, err := s.cfg.Auth.Validate(token)
		if err != nil {
			if s.cfg.Logger != nil {
				s.cfg.Logger.Warn(r.Context(), "token validation failed", "error", err)
			}
			writeError(w, newAPIError(http.StatusUnauthorized, "invalid_token", "invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		if s.cfg.Logger != nil {
			s.cfg.Logger.Debug(r.Context(), "http request",
				"method", r.Method, "path", r.URL.Path, "status", wrapped.status, "duration", duration)
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprint(wrapped.status), duration.Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Start binds the listen address and begins serving in a background
// goroutine, matching teacher's http_server.go start/stop shape.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("controlapi: listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpListener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.cfg.Logger != nil {
				s.cfg.Logger.Error(ctx, "control api server error", "error", err)
			}
		}
	}()

	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(ctx, "control api listening", "addr", s.cfg.Addr)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// (SSE streams included, since their handlers watch ctx.Done()) to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
