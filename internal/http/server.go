package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"hisab/internal/currency"
	"hisab/internal/ledger"
	"hisab/internal/log"
	"hisab/internal/middleware/gate"
	"hisab/internal/middleware/ratelimit"
	"hisab/internal/middleware/security"
	"hisab/internal/middleware/trace"
)

// Pinger reports whether the storage backends are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API serves from.
type Deps struct {
	Ledger    *ledger.Service
	Rates     *currency.Table
	Ready     Pinger
	Gate      *gate.Gate
	RateLimit ratelimit.Config
	Logger    *log.Logger
}

type Server struct {
	http.Server
	ledger   *ledger.Service
	rates    *currency.Table
	ready    Pinger
	gate     *gate.Gate
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewDiscard()
	}
	rates := deps.Rates
	if rates == nil {
		rates = currency.Default()
	}
	g := deps.Gate
	if g == nil {
		g, _ = gate.New("", logger)
	}

	s := &Server{
		ledger:   deps.Ledger,
		rates:    rates,
		ready:    deps.Ready,
		gate:     g,
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(logger),
		logger:   logger.WithComponent(log.ComponentHTTP),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = log.ComponentMiddleware(log.ComponentHTTP)(mux)
	h = s.gate.Middleware(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusUnauthorized, "app password required").Write(w)
	})(h)
	h = apiOnly(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	}))(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/unlock", s.handleUnlock)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/calculator", s.handleCalculator)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/profiles", s.handleCreateProfile)
	mux.HandleFunc("PATCH /api/profiles/{id}", s.handleRenameProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", s.handleDeleteProfile)
	mux.HandleFunc("POST /api/profiles/{id}/activate", s.handleActivateProfile)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleAddTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/categories", s.handleCategoryStats)
	mux.HandleFunc("GET /api/insights", s.handleInsight)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleAddGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/deposit", s.handleDepositGoal)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories/{type}", s.handleAddCategory)
	mux.HandleFunc("DELETE /api/categories/{type}/{name}", s.handleRemoveCategory)

	mux.HandleFunc("GET /api/backup", s.handleBackup)
	mux.HandleFunc("POST /api/restore", s.handleRestore)
	mux.HandleFunc("DELETE /api/data", s.handleClearData)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusNotFound, "no such endpoint").Write(w)
	})
}

// apiOnly applies mw to /api/ requests and lets the rest bypass it.
func apiOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.NewFields().WithError(err).ToSlice()...)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// scope resolves the caller's identity to the ledger scope it works on.
func (s *Server) scope(r *http.Request) (ledger.Scope, error) {
	id, err := ParseIdentity(r)
	if err != nil {
		return ledger.Scope{}, err
	}
	return s.ledger.ResolveScope(r.Context(), id.UserID, id.ProfileHint)
}
