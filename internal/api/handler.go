package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AhmedPho/blazer/internal/config"
	"github.com/AhmedPho/blazer/internal/engine"
	"github.com/AhmedPho/blazer/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// QueryRunner is the engine surface the handlers need. Satisfied by
// *engine.Engine.
type QueryRunner interface {
	Run(ctx context.Context, ds *engine.DataSource, statement string, opts engine.RunOptions) (engine.Result, error)
	RunResults(ctx context.Context, runID string) (engine.Result, bool, error)
	DeleteResults(ctx context.Context, runID string) error
	ClearCache(ctx context.Context, ds *engine.DataSource, statement string) error
	Tables(ctx context.Context, ds *engine.DataSource) ([]string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Engine            QueryRunner
	Registry          *engine.Registry
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/queries/run", func(w http.ResponseWriter, r *http.Request) {
		handleRunQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleRunResults(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteRun(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		handleClearCache(deps, w, r)
	})
	protected.HandleFunc("GET /v1/data-sources", func(w http.ResponseWriter, r *http.Request) {
		handleListDataSources(deps, w, r)
	})
	protected.HandleFunc("GET /v1/data-sources/{id}/tables", func(w http.ResponseWriter, r *http.Request) {
		handleDataSourceTables(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/queries/run", protectedHandler)
	mux.Handle("GET /v1/runs/{id}", protectedHandler)
	mux.Handle("DELETE /v1/runs/{id}", protectedHandler)
	mux.Handle("POST /v1/cache/clear", protectedHandler)
	mux.Handle("GET /v1/data-sources", protectedHandler)
	mux.Handle("GET /v1/data-sources/{id}/tables", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckStorageDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Engine.AuditEnabled {
			return nil
		}
		if cfg.Storage.DSN == "" {
			return errors.New("storage dsn is not configured")
		}
		return nil
	}
}

func CheckDataSources(registry *engine.Registry) ReadinessCheck {
	return func(_ context.Context) error {
		if registry == nil || len(registry.List()) == 0 {
			return errors.New("no data sources are configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
