package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/ledger"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
)

// UserHeader carries the identity set by the authenticating proxy in front
// of the server.
const UserHeader = "X-User-ID"

// ReadinessCheck reports whether the server's dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server

	ledger   *ledger.Service
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	ready    ReadinessCheck
	sessions func() int
	now      func() time.Time
	started  time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock replaces the clock used for today's date and uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithReadiness(check ReadinessCheck) Option {
	return func(s *Server) { s.ready = check }
}

// WithActiveSessions reports the number of loaded user sessions on /metrics.
func WithActiveSessions(count func() int) Option {
	return func(s *Server) { s.sessions = count }
}

// WithRateLimit caps mutating requests per client and minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		cfg := ratelimit.DefaultConfig()
		cfg.RequestsPerMinute = perMinute
		s.limiter.Stop()
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// NewServer wires the JSON API over svc and returns a ready-to-run server.
func NewServer(addr string, svc *ledger.Service, opts ...Option) *Server {
	s := &Server{
		Server:   http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second},
		ledger:   svc,
		logger:   log.Default(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.started = s.now()
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/monthly", s.handleMonthlyStats)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/export.csv", s.handleExport)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(mux)
	s.Handler = s.tracer.Middleware(headers.Middleware(s.screen(limited)))
	return s
}

// screen logs requests that look like probes; they are still served.
func (s *Server) screen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				"user_agent", r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
}

// Shutdown stops the rate limiter sweeper and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
