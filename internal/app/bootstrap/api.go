package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/practice-records/internal/api/router"
	"github.com/wolfman30/practice-records/internal/backup"
	"github.com/wolfman30/practice-records/internal/billing"
	"github.com/wolfman30/practice-records/internal/compliance"
	appconfig "github.com/wolfman30/practice-records/internal/config"
	"github.com/wolfman30/practice-records/internal/http/handlers"
	"github.com/wolfman30/practice-records/internal/observability/metrics"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// ErrDatabaseUnavailable is returned when RECORDS_BACKEND=postgres cannot connect.
var ErrDatabaseUnavailable = errors.New("bootstrap: postgres unavailable")

// API is the assembled server-side application.
type API struct {
	Handler  http.Handler
	Records  *records.Service
	Backup   *backup.Service
	Registry *prometheus.Registry

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// Close releases database handles.
func (a *API) Close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// BuildRecordsService selects the repository from RECORDS_BACKEND and attaches
// the audit trail when Postgres is in use.
func BuildRecordsService(ctx context.Context, cfg *appconfig.Config, m *metrics.RecordsMetrics, logger *logging.Logger) (*records.Service, *pgxpool.Pool, *sql.DB, error) {
	if !cfg.UsePostgres() {
		logger.Info("using in-memory records repository")
		return records.NewService(records.NewInMemoryRepository(), nil, m, logger), nil, nil, nil
	}
	pool := ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		return nil, nil, nil, ErrDatabaseUnavailable
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	audit := compliance.NewAuditService(sqlDB)
	return records.NewService(records.NewPostgresRepository(pool), audit, m, logger), pool, sqlDB, nil
}

// BuildAPI wires every HTTP handler onto the router.
func BuildAPI(ctx context.Context, cfg *appconfig.Config, archive *backup.Archive, logger *logging.Logger) (*API, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, pool, sqlDB, err := BuildRecordsService(ctx, cfg, metrics.NewRecordsMetrics(registry), logger)
	if err != nil {
		return nil, err
	}
	backupSvc := backup.NewService(svc, archive, logger)

	handler := router.New(&router.Config{
		Logger:             logger,
		RecordsHandler:     records.NewHandler(svc, logger),
		BillingHandler:     billing.NewHandler(svc, logger),
		BackupHandler:      backup.NewHandler(backupSvc, logger),
		HealthHandler:      handlers.NewHealthHandler(svc, cfg.AppVersion, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JWTSecret:          cfg.APIJWTSecret,
		ImportRateLimit:    cfg.ImportRateLimit,
		ImportRateBurst:    cfg.ImportRateBurst,
	})

	return &API{
		Handler:  handler,
		Records:  svc,
		Backup:   backupSvc,
		Registry: registry,
		pool:     pool,
		sqlDB:    sqlDB,
	}, nil
}
