package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ocp/internal/cache"
	"ocp/internal/core"
	applog "ocp/internal/log"
	"ocp/internal/middleware/ratelimit"
	"ocp/internal/middleware/security"
	"ocp/internal/middleware/trace"
	"ocp/internal/overlap"
	"ocp/internal/report"
	"ocp/internal/services"
)

// AnalysisAPI is the subset of the analysis service the server exposes.
type AnalysisAPI interface {
	Analyze(ctx context.Context, req services.AnalysisRequest) (services.AnalysisOutcome, error)
	Categories(ctx context.Context) ([]core.CategoryCount, error)
	SaveSelection(ctx context.Context, key overlap.GroupKey, kept []string) error
	ClearSelection(ctx context.Context, key overlap.GroupKey) error
}

// ReadinessCheck reports whether dependencies can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int
	Ready              ReadinessCheck
	Logger             *applog.Logger
}

// analysisResponse is the body of POST /api/analyze.
type analysisResponse struct {
	report.Document
	ReportRef string `json:"report_ref,omitempty"`
}

type Server struct {
	http.Server

	api    AnalysisAPI
	ready  ReadinessCheck
	logger *applog.Logger
	events *applog.StructuredLogger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	categoriesCache *cache.LRUCache[[]core.CategoryCount]
	analysisCache   *cache.LRUCache[analysisResponse]
	cacheManager    *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, api AnalysisAPI, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		api:             api,
		ready:           opts.Ready,
		logger:          logger,
		events:          applog.NewStructuredLogger(logger),
		limiter:         ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:        detector,
		tracer:          trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		categoriesCache: cache.NewLRUCache[[]core.CategoryCount](1, opts.CacheTTL),
		analysisCache:   cache.NewLRUCache[analysisResponse](opts.CacheSize, opts.CacheTTL),
		cacheManager:    cache.NewManager(logger.Logger),
	}

	s.cacheManager.Register("categories", s.categoriesCache)
	s.cacheManager.Register("analysis", s.analysisCache)
	s.cacheManager.StartCleanup(opts.CacheTTL * 2)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("PUT /api/selections", s.handlePutSelection)
	mux.HandleFunc("DELETE /api/selections", s.handleDeleteSelection)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware wraps the mux, outermost first: tracing, request-scoped
// logger, security headers, probe rejection, rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingMethods, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(next)

	h = s.detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Suspicious request rejected",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		BadRequestError("bad request").Write(w)
	})(h)

	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(s.logger)(h)
	return s.tracer.Middleware(h)
}

// invalidate drops every cached listing and analysis.
func (s *Server) invalidate() {
	s.categoriesCache.Purge()
	s.analysisCache.Purge()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.LogStats()
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
