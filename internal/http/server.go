package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"lifedash/internal/cache"
	"lifedash/internal/core"
	applog "lifedash/internal/log"
	"lifedash/internal/middleware/ratelimit"
	"lifedash/internal/middleware/security"
	"lifedash/internal/middleware/trace"
	"lifedash/internal/services"
)

// Ingester applies submissions from the ingest endpoint.
type Ingester interface {
	SubmitBudget(ctx context.Context, userID string, sub core.BudgetSubmission) (core.BudgetCategory, error)
	SubmitHealth(ctx context.Context, userID string, h core.HealthMetrics) (core.HealthMetrics, error)
}

// Syncer runs provider syncs.
type Syncer interface {
	Resolve(names []string) ([]string, error)
	Sync(ctx context.Context, userID string, names []string) (services.SyncReport, error)
	Status(ctx context.Context, userID string) (services.SyncStatus, error)
}

// SyncPublisher queues sync requests for the worker.
type SyncPublisher interface {
	PublishSyncRequest(ctx context.Context, userID string, names []string) (string, error)
}

// Reader serves the dashboard read API.
type Reader interface {
	ListBudgetCategories(ctx context.Context, userID string, month core.Month) ([]core.BudgetCategory, error)
	ListHealth(ctx context.Context, userID string, from, to core.Date) ([]core.HealthMetrics, error)
	ListTransactions(ctx context.Context, userID string, month core.Month) ([]core.Transaction, error)
	ListGlucoseReadings(ctx context.Context, userID string, since time.Time) ([]core.GlucoseReading, error)
	Ping(ctx context.Context) error
}

// Connector runs the OAuth consent of providers.
type Connector interface {
	AuthCodeURL(provider, state string) (string, error)
	Exchange(ctx context.Context, provider, userID, code, realmID string) error
}

// StateIssuer signs and verifies OAuth state parameters.
type StateIssuer interface {
	Issue(provider, userID string) (string, error)
	Redeem(provider, state string) (string, error)
	UsedStates() cache.Cleaner
}

// Deps are the collaborators of the server. Publisher may be nil, which
// disables ?async=true.
type Deps struct {
	Ingest    Ingester
	Sync      Syncer
	Publisher SyncPublisher
	Reader    Reader
	Connector Connector
	States    StateIssuer

	APIKey             string
	DashboardURL       string
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type appMetrics struct {
	started       time.Time
	budgetIngests int64
	healthIngests int64
	syncRuns      int64
	syncQueued    int64
	syncFailures  int64
	authConnected int64
	authFailed    int64
}

type Server struct {
	http.Server

	deps   Deps
	logger *applog.Logger
	now    func() time.Time

	apiKey           *security.APIKey
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager
	appMetrics       appMetrics

	shutdownOnce sync.Once
}

// userHandler serves an authenticated request on behalf of userID.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:             deps,
		logger:           logger,
		now:              time.Now,
		apiKey:           security.NewAPIKey(deps.APIKey),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		securityDetector: security.NewDetector(logger),
		cacheManager:     cache.NewManager(logger),
		appMetrics:       appMetrics{started: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	if deps.States != nil {
		s.cacheManager.Register(deps.States.UsedStates())
		s.cacheManager.StartCleanup(5 * time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/ingest", s.handleIngestInfo)
	mux.Handle("POST /api/ingest", s.authed(s.handleIngest))

	mux.Handle("GET /api/auth/{provider}", s.authed(s.handleAuthStart))
	mux.HandleFunc("GET /api/auth/{provider}/callback", s.handleAuthCallback)

	mux.Handle("POST /api/sync/all", s.authed(s.handleSyncAll))
	mux.Handle("GET /api/sync/status", s.authed(s.handleSyncStatus))
	mux.Handle("POST /api/sync/{service}", s.authed(s.handleSyncService))

	mux.Handle("GET /api/budget", s.authed(s.handleBudget))
	mux.Handle("GET /api/health", s.authed(s.handleHealthData))
	mux.Handle("GET /api/transactions", s.authed(s.handleTransactions))
	mux.Handle("GET /api/glucose", s.authed(s.handleGlucose))

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Synchronous syncs retry providers, so writes get more room.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// authed requires the API key and the x-user-id header.
func (s *Server) authed(next userHandler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := ParseUserID(r)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		next(w, r, userID)
	})
	return s.apiKey.Middleware(s.onUnauthorized)(inner)
}

func (s *Server) onUnauthorized(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected request without valid API key",
		applog.FieldComponent, applog.ComponentAuth,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeErrorMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

func (s *Server) countSync(report services.SyncReport) {
	atomic.AddInt64(&s.appMetrics.syncRuns, int64(len(report.Results)))
	atomic.AddInt64(&s.appMetrics.syncFailures, int64(len(report.Results)-report.Succeeded()))
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
