package http

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"insights/internal/amqp"
	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/middleware/ratelimit"
	"insights/internal/middleware/security"
	"insights/internal/middleware/trace"
	"insights/internal/report"
	"insights/internal/services"
	appweb "insights/web"
)

// ReportRunner runs catalogue reports. *services.ReportService implements it.
type ReportRunner interface {
	Catalogue() *report.Catalogue
	Run(ctx context.Context, name string, f core.FilterSet) services.Outcome
	RunAll(ctx context.Context, f core.FilterSet) ([]services.Outcome, error)
	RunCategory(ctx context.Context, key string, f core.FilterSet) ([]services.Outcome, error)
}

// ExportPublisher queues export requests. *amqp.Client implements it.
type ExportPublisher interface {
	PublishExportRequest(ctx context.Context, msg *amqp.ExportRequestMessage) error
}

// Store is the readiness view of the dataset pool. *storage.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	Stats() sql.DBStats
}

// Deps are the collaborators of a Server. Exports may be nil, which disables
// the export button and makes POST /exports answer 503.
type Deps struct {
	Reports   ReportRunner
	Store     Store
	Exports   ExportPublisher
	Logger    *log.Logger
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server
	templates *template.Template
	reports   ReportRunner
	store     Store
	exports   ExportPublisher
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once

	// storeDownUntil (unix nanos) pauses report sections after a lost connection.
	storeDownUntil atomic.Int64
}

type appMetrics struct {
	uptime         time.Time
	reportRuns     int64
	reportFailures int64
	exportsQueued  int64
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	r := mux.NewRouter()
	detector := security.NewDetector()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		reports:          deps.Reports,
		store:            deps.Store,
		exports:          deps.Exports,
		logger:           logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(deps.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	// Parse embedded templates at startup.
	t, err := appweb.Templates(templateFuncs)
	if err != nil {
		s.logger.Warn("Failed parsing templates",
			log.FieldError, err,
			log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = t
	}

	r.Use(s.traceMiddleware.Middleware, s.securityDetector.Middleware, s.headers.Middleware)

	// Static assets (served from embedded FS)
	static := http.StripPrefix("/static/", http.FileServer(http.FS(appweb.Static())))
	r.PathPrefix("/static/").Handler(security.StaticAssetMiddleware(3600)(static)).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	// UI partials
	r.HandleFunc("/ui/reports/{name}", s.handleReportPartial).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/{name}", s.handleRunReport).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)
	r.Handle("/exports", limited(http.HandlerFunc(s.handleCreateExport))).Methods(http.MethodPost)

	return s
}

// onRateLimit answers a throttled export with a notification the page can show.
func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path,
		log.FieldComponent, log.ComponentRateLimit)
	htmlError(http.StatusTooManyRequests, errorKindRateLimited, "Too many export requests. Please try again later.").send(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// render executes a named template into w, logging failures.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldComponent, log.ComponentTemplate)
	}
}

var templateFuncs = template.FuncMap{
	"seconds": func(ms int64) string {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	},
}
