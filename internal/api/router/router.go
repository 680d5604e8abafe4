package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/practice-records/internal/backup"
	"github.com/wolfman30/practice-records/internal/billing"
	httpmiddleware "github.com/wolfman30/practice-records/internal/http/middleware"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	RecordsHandler *records.Handler
	BillingHandler *billing.Handler
	BackupHandler  *backup.Handler
	HealthHandler  http.Handler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string
	// JWTSecret protects /api; empty leaves it open.
	JWTSecret string
	// ImportRateLimit caps backup requests per second per client; zero disables it.
	ImportRateLimit float64
	ImportRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		records.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(records.MethodNotAllowed)

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Method(http.MethodGet, "/health", cfg.HealthHandler)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.BearerJWT(cfg.JWTSecret))

		if cfg.RecordsHandler != nil {
			api.Mount("/records", cfg.RecordsHandler.RecordsRoutes())
			api.Get("/patients", cfg.RecordsHandler.ListPatients)
		}
		if cfg.BillingHandler != nil {
			api.Get("/patients/{folder}/history", cfg.BillingHandler.History)
			api.Route("/summary", func(s chi.Router) {
				s.Get("/daily", cfg.BillingHandler.Daily)
				s.Get("/range", cfg.BillingHandler.Range)
			})
			api.Route("/reports", func(rep chi.Router) {
				rep.Get("/daily.xlsx", cfg.BillingHandler.DailyXLSX)
				rep.Get("/range.xlsx", cfg.BillingHandler.RangeXLSX)
			})
		}
		if cfg.BackupHandler != nil {
			api.With(httpmiddleware.RateLimit(cfg.ImportRateLimit, cfg.ImportRateBurst)).
				Mount("/backup", cfg.BackupHandler.Routes())
		}
	})

	return r
}
