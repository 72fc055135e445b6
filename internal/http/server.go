// Package http serves the household JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gagyebu/internal/auth"
	applog "gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/repository"
	"gagyebu/internal/services"
)

// Deps are the collaborators the handlers call.
type Deps struct {
	Repo        repository.Repository
	Household   *services.HouseholdService
	Invitations *services.InvitationService
	Brokers     *services.BrokerService
	Accounts    *auth.PasswordAuthenticator
	JWT         *auth.JWTManager
	Metrics     *metrics.Metrics
	Logger      *applog.Logger

	RateLimitPerMinute int
	TrustedProxies     []string
	Now                func() time.Time
}

type Server struct {
	http.Server
	deps    Deps
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
	logger  *applog.Logger

	requireAuth func(http.Handler) http.Handler

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		logger:  logger,
	}
	s.requireAuth = auth.RequireAuth(deps.JWT, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, err)
	})
	s.routes()

	detector := security.NewDetector(logger.WithComponent(applog.ComponentSecurity), deps.Metrics)
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err.Error())
		}
	}
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(detector.ExtractClientIP, applog.NewStructuredLogger(logger), deps.Metrics)
	limit := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later")
	})

	var h http.Handler = s.mux
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(logger)(h)
	h = limit(h)
	h = headers.Middleware(h)
	h = detector.Middleware(h)
	h = tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 7 * time.Second,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// handlerFunc is a handler that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle registers h for pattern behind mws, recording the pattern as the
// metrics route and rendering returned errors as JSON.
func (s *Server) handle(pattern string, h handlerFunc, mws ...func(http.Handler) http.Handler) {
	var inner http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	})
	for _, mw := range mws {
		inner = mw(inner)
	}
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(r.Context(), pattern)
		inner.ServeHTTP(w, r)
	}))
}

// authed registers h behind bearer token authentication.
func (s *Server) authed(pattern string, h handlerFunc) {
	s.handle(pattern, h, s.requireAuth)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(r.Context(), "GET /healthz")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.handle("GET /readyz", s.handleReady)
	s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	s.handle("POST /api/auth/register", s.handleRegister)
	s.handle("POST /api/auth/login", s.handleLogin)

	s.authed("GET /api/me", s.handleMe)
	s.authed("PATCH /api/me", s.handleUpdateMe)
	s.authed("DELETE /api/me/partner", s.handleUnlink)
	s.authed("GET /api/dashboard", s.handleDashboard)

	s.authed("POST /api/invitations", s.handleCreateInvitation)
	s.authed("GET /api/invitations/sent", s.handleSentInvitations)
	s.authed("GET /api/invitations/received", s.handleReceivedInvitations)
	s.authed("GET /api/invitations/{code}", s.handleGetInvitation)
	s.authed("POST /api/invitations/{code}/accept", s.handleAcceptInvitation)
	s.authed("POST /api/invitations/{code}/reject", s.handleRejectInvitation)

	s.recordRoutes()

	s.authed("GET /api/broker/connection", s.handleGetConnection)
	s.authed("PUT /api/broker/connection", s.handleSaveConnection)
	s.authed("DELETE /api/broker/connection", s.handleDeleteConnection)
	s.authed("GET /api/broker/holdings", s.handleHoldings)
	s.authed("POST /api/broker/refresh", s.handleRefresh)
	s.authed("GET /api/broker/quotes/{code}", s.handleQuote)
	s.authed("POST /api/broker/snapshots", s.handleSaveSnapshot)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Repo.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
		writeErrorCode(w, http.StatusServiceUnavailable, "not_ready", "repository unavailable")
		return nil
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
	return nil
}

// Shutdown stops the rate limiter and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
