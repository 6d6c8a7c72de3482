package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"flashmvp/internal/auth"
	"flashmvp/internal/config"
	"flashmvp/internal/logging"
	"flashmvp/internal/metrics"
	"flashmvp/internal/models"
	"flashmvp/internal/storage"
	"flashmvp/internal/utils"
)

// UsageStore is the slice of the ledger repository the HTTP layer needs.
type UsageStore interface {
	Insert(ctx context.Context, record *models.UsageRecord) error
	Summary(ctx context.Context) (models.Summary, error)
	TopFeaturesByCost(ctx context.Context, limit int) ([]models.FeatureCost, error)
	TopModelsByCost(ctx context.Context, limit int) ([]models.ModelCost, error)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Usage         UsageStore
	Sessions      *auth.SessionSigner
	Metrics       *metrics.Metrics
	RequestLogger *logging.RequestLogger
	Archiver      *logging.Archiver
	Logger        *utils.Logger
	DB            *storage.DB

	backendURL string
	client     *http.Client
}

// NewRouter creates an HTTP router with all dependencies wired up.
func NewRouter(cfg *config.GatewayConfig) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	requestLogger, err := logging.NewRequestLogger(
		cfg.RequestLogger.FilePathTemplate,
		cfg.RequestLogger.MaxSize,
		cfg.RequestLogger.MaxFiles,
		cfg.RequestLogger.BufferSize,
		cfg.RequestLogger.FlushInterval,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize request logger: %w", err)
	}

	var archiver *logging.Archiver
	if cfg.Archiver.Enabled {
		writer, err := logging.NewS3Writer(
			context.Background(),
			cfg.Archiver.S3Bucket,
			cfg.Archiver.S3Region,
			cfg.Archiver.S3Prefix,
			cfg.Archiver.NodeName,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ledger archiver: %w", err)
		}
		archiver = logging.NewArchiver(writer, cfg.Archiver.BufferSize, cfg.Archiver.FlushSize, cfg.Archiver.FlushInterval)
	}

	deps := &Dependencies{
		Usage:         db.NewUsageRepository(),
		Sessions:      auth.NewSessionSigner(cfg.SessionSecret, 24*time.Hour),
		Metrics:       metrics.New("gateway"),
		RequestLogger: requestLogger,
		Archiver:      archiver,
		Logger:        utils.NewLogger("gateway"),
		DB:            db,
		backendURL:    cfg.BackendURL,
		client:        &http.Client{Timeout: 60 * time.Second},
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// Shutdown flushes buffers and releases resources. Safe to call once
// the HTTP server has stopped accepting requests.
func (d *Dependencies) Shutdown(ctx context.Context) {
	if d.RequestLogger != nil {
		d.RequestLogger.Shutdown()
	}
	if d.Archiver != nil {
		if err := d.Archiver.Shutdown(ctx); err != nil {
			d.Logger.Warn("archiver shutdown incomplete", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Warn("database close failed", "error", err)
		}
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.GatewayConfig) {
	instrument := func(h http.Handler) http.Handler {
		return deps.Metrics.WithHTTPMetrics(deps.withRequestLog(h))
	}

	// Ledger endpoints take priority over the proxy: the mux prefers
	// the longest matching pattern, so these never reach the backend.
	mux.Handle("/api/track-usage", instrument(http.HandlerFunc(deps.handleTrackUsage)))
	mux.Handle("/api/usage-report", instrument(http.HandlerFunc(deps.handleUsageReport)))

	// Everything else under /api/ is forwarded to the compute backend.
	mux.Handle("/api/", instrument(http.HandlerFunc(deps.handleProxy)))

	mux.HandleFunc("/health", deps.handleHealth)
	mux.Handle("/metrics", deps.Metrics.Handler())

	// Static shell. Unmatched paths fall through here.
	mux.Handle("/", deps.Metrics.WithHTTPMetrics(http.FileServer(http.Dir(cfg.StaticDir))))
}

// withRequestLog records the incoming request into the JSONL audit log
// before the handler runs.
func (d *Dependencies) withRequestLog(next http.Handler) http.Handler {
	if d.RequestLogger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.RequestLogger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		if err := d.DB.Health(r.Context()); err != nil {
			utils.RespondWithError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
