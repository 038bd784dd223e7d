// Package gateway serves the BrandGuard HTTP API: rule set management,
// evaluations and fixes, and brand asset uploads.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brandguard/brandguard/core/infra/blob"
	"github.com/brandguard/brandguard/core/infra/bus"
	"github.com/brandguard/brandguard/core/infra/config"
	"github.com/brandguard/brandguard/core/infra/logging"
	infraMetrics "github.com/brandguard/brandguard/core/infra/metrics"
	"github.com/brandguard/brandguard/core/store"
	"github.com/brandguard/brandguard/core/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes  = 2 << 20 // rule and evaluation bodies
	maxAssetBytes = 25 << 20

	component = "api-gateway"
)

// orchestrator is the slice of upstream.Orchestrator the handlers use.
type orchestrator interface {
	Evaluate(ctx context.Context, req upstream.EvaluateRequest) (*store.Evaluation, error)
	Fix(ctx context.Context, evaluationID string) (*store.FixResult, error)
}

type server struct {
	store    store.Store
	upstream orchestrator
	assets   blob.Store
	metrics  infraMetrics.GatewayMetrics
	limiter  *rate.Limiter
	started  time.Time
}

// Run wires the backends described by cfg, serves until ctx is cancelled and
// closes everything it opened.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}
	upCfg, err := config.LoadUpstream(cfg.UpstreamConfigPath)
	if err != nil {
		return fmt.Errorf("load upstream config: %w", err)
	}
	if upCfg.EvaluateURL == "" {
		logging.Warn(component, "EVALUATE_URL not set; evaluations will fail with UPSTREAM_CONFIG_ERROR")
	}
	if upCfg.FixURL == "" {
		logging.Warn(component, "FIX_URL not set; fixes will fail with UPSTREAM_CONFIG_ERROR")
	}

	backend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	var publisher bus.Publisher = bus.Nop{}
	if cfg.NatsURL != "" {
		natsPub, err := bus.NewNatsPublisher(cfg.NatsURL)
		if err != nil {
			logging.Error(component, "nats unavailable; events disabled", "error", err)
		} else {
			defer natsPub.Close()
			publisher = natsPub
		}
	}

	var assets blob.Store
	if cfg.Assets.Enabled() {
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:        cfg.Assets.Bucket,
			Region:        cfg.Assets.Region,
			Endpoint:      cfg.Assets.Endpoint,
			PublicBaseURL: cfg.Assets.PublicBaseURL,
			Prefix:        cfg.Assets.Prefix,
		})
		if err != nil {
			return fmt.Errorf("init asset store: %w", err)
		}
		assets = s3Store
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orch := upstream.New(*upCfg,
		upstream.WithEvaluations(backend),
		upstream.WithResults(backend),
		upstream.WithMetrics(infraMetrics.NewUpstreamProm(reg)),
		upstream.WithPublisher(publisher),
	)
	s := &server{
		store:    backend,
		upstream: orch,
		assets:   assets,
		metrics:  infraMetrics.NewGatewayProm(reg),
		limiter:  newLimiterFromEnv(),
		started:  time.Now().UTC(),
	}
	return serve(ctx, s, cfg.HTTPAddr, cfg.MetricsAddr, reg)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		logging.Info(component, "using postgres store")
		return pg, nil
	}
	rs, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logging.Info(component, "using redis store")
	return rs, nil
}

func serve(ctx context.Context, s *server, httpAddr, metricsAddr string, reg *prometheus.Registry) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler(reg))
	metricsSrv := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logging.Info(component, "metrics listening", "addr", metricsAddr+"/metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(component, "metrics server error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           s.handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Upstream calls may take the full upstream timeout.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info(component, "http listening", "addr", httpAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = metricsSrv.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error(component, "http server error", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logging.Info(component, "shutting down")
	_ = metricsSrv.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

// handler builds the routed, middleware-wrapped API handler.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Rule sets
	mux.HandleFunc("POST /api/v1/rules/validate", s.instrumented("/api/v1/rules/validate", s.handleValidateRules))
	mux.HandleFunc("POST /api/v1/rules/migrate", s.instrumented("/api/v1/rules/migrate", s.handleMigrateRules))
	mux.HandleFunc("GET /api/v1/brands/{brandId}/rules", s.instrumented("/api/v1/brands/{brandId}/rules", s.handleListBrandRules))
	mux.HandleFunc("POST /api/v1/brands/{brandId}/rules", s.instrumented("/api/v1/brands/{brandId}/rules", s.handleCreateBrandRules))
	mux.HandleFunc("POST /api/v1/brands/{brandId}/rules/migrate", s.instrumented("/api/v1/brands/{brandId}/rules/migrate", s.handleMigrateBrandRules))
	mux.HandleFunc("GET /api/v1/rules/{id}", s.instrumented("/api/v1/rules/{id}", s.handleGetRule))
	mux.HandleFunc("PUT /api/v1/rules/{id}", s.instrumented("/api/v1/rules/{id}", s.handleReplaceRule))
	mux.HandleFunc("DELETE /api/v1/rules/{id}", s.instrumented("/api/v1/rules/{id}", s.handleDeleteRule))

	// Evaluations and fixes
	mux.HandleFunc("POST /api/v1/evaluations", s.instrumented("/api/v1/evaluations", s.handleCreateEvaluation))
	mux.HandleFunc("GET /api/v1/evaluations/{id}", s.instrumented("/api/v1/evaluations/{id}", s.handleGetEvaluation))
	mux.HandleFunc("POST /api/v1/evaluations/{id}/fix", s.instrumented("/api/v1/evaluations/{id}/fix", s.handleFixEvaluation))
	mux.HandleFunc("GET /api/v1/evaluations/{id}/fixes", s.instrumented("/api/v1/evaluations/{id}/fixes", s.handleListFixes))

	// Assets
	mux.HandleFunc("POST /api/v1/brands/{brandId}/assets", s.instrumented("/api/v1/brands/{brandId}/assets", s.handleUploadAsset))

	return corsMiddleware(s.rateLimitMiddleware(mux))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
	}
	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["store"] = err.Error()
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	}
}
