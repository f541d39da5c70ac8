package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/mind-engage/safetytest/internal/auth/middleware"
	"github.com/mind-engage/safetytest/internal/eventlog"
	"github.com/mind-engage/safetytest/internal/metrics"
	"github.com/mind-engage/safetytest/internal/rbac"
	"github.com/mind-engage/safetytest/internal/storage"
	"github.com/mind-engage/safetytest/internal/workflow"
)

// CorrelationHeader carries the id tying a request to its event log rows.
const CorrelationHeader = "X-Correlation-ID"

type RouterDeps struct {
	Service     *workflow.Service
	Auth        *auth.AuthService
	Checker     *rbac.Checker
	Blobs       storage.BlobStore
	Gatherer    prometheus.Gatherer
	Ready       func(context.Context) error
	CORSOrigins []string
	Log         *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	checker := d.Checker
	if checker == nil {
		checker = rbac.NewChecker(rbac.RolePermissions)
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(Correlation)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", CorrelationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	// students
	r.Post("/register", RegisterHandler(d.Service, log))
	r.Get("/test", DeliverHandler(d.Service, log))
	r.Post("/test/submit", SubmitHandler(d.Service, log))

	// instructors
	if d.Auth != nil {
		r.Post("/auth/login", auth.LoginHandler(d.Auth))
		r.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(d.Auth))
			pr.With(checker.Require(rbac.PermClassIssue)).Post("/classes/{classCode}/issue", IssueHandler(d.Service, log))
			pr.With(checker.Require(rbac.PermResultsView)).Get("/classes/{classCode}/results.csv", ResultsCSVHandler(d.Service, log))
			pr.With(checker.Require(rbac.PermBankStats)).Get("/bank/stats", BankStatsHandler(d.Service, log))
			if d.Blobs != nil {
				pr.With(checker.Require(rbac.PermCertDownload)).Route("/certificates", func(cr chi.Router) {
					MountCertificates(cr, d.Blobs)
				})
			}
		})
	}
	return r
}

// Correlation puts a correlation id on the request context, taking the
// caller's header when present and otherwise the chi request id.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = eventlog.NewCorrelationID()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(eventlog.WithCorrelationID(r.Context(), id)))
	})
}
