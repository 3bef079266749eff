package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AhmedPho/blazer/internal/auth"
	"github.com/AhmedPho/blazer/internal/engine"
)

type runQueryRequest struct {
	DataSource     string `json:"data_source"`
	Statement      string `json:"statement"`
	QueryID        string `json:"query_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RefreshCache   bool   `json:"refresh_cache"`
	Async          bool   `json:"async"`
}

type runQueryResponse struct {
	Columns  []string   `json:"columns"`
	Rows     [][]any    `json:"rows"`
	Error    string     `json:"error,omitempty"`
	TimedOut bool       `json:"timed_out"`
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cached_at,omitempty"`
}

// asyncRunTimeout bounds background executions once the request context is
// gone.
const asyncRunTimeout = 10 * time.Minute

func handleRunQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil || deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_runner"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request runQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid run request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Statement) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "STATEMENT_REQUIRED", "statement is required", false, nil)
		return
	}
	if request.TimeoutSeconds < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TIMEOUT", "timeout_seconds must not be negative", false, nil)
		return
	}

	ds, ok := deps.Registry.Get(request.DataSource)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", fmt.Sprintf("unknown data source %q", request.DataSource), false, nil)
		return
	}

	opts := engine.RunOptions{
		QueryID:         request.QueryID,
		RefreshCache:    request.RefreshCache,
		TimeoutOverride: time.Duration(request.TimeoutSeconds) * time.Second,
		User:            userFromRequest(r),
	}

	if request.Async {
		opts.RunID = uuid.NewString()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), asyncRunTimeout)
			defer cancel()
			if _, err := deps.Engine.Run(ctx, ds, request.Statement, opts); err != nil && deps.Logger != nil {
				deps.Logger.Error("async run failed", "run_id", opts.RunID, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"run_id": opts.RunID, "status": "pending"})
		return
	}

	result, err := deps.Engine.Run(r.Context(), ds, request.Statement, opts)
	if err != nil {
		if errors.Is(err, engine.ErrTimeoutNotSupported) {
			writeError(r.Context(), w, http.StatusBadRequest, "TIMEOUT_NOT_SUPPORTED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "RUN_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(result))
}

func handleRunResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	runID := r.PathValue("id")
	result, found, err := deps.Engine.RunResults(r.Context(), runID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RUN_LOOKUP_FAILED", err.Error(), true, nil)
		return
	}
	if !found {
		// Either still executing or past the run-cache TTL; the caller
		// keeps polling until it gives up.
		writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID, "status": "pending"})
		return
	}
	writeJSON(w, http.StatusOK, runResponse(result))
}

func handleDeleteRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	if err := deps.Engine.DeleteResults(r.Context(), r.PathValue("id")); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RUN_DELETE_FAILED", err.Error(), true, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type clearCacheRequest struct {
	DataSource string `json:"data_source"`
	Statement  string `json:"statement"`
}

func handleClearCache(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil || deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	var request clearCacheRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid cache clear body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Statement) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "STATEMENT_REQUIRED", "statement is required", false, nil)
		return
	}
	ds, ok := deps.Registry.Get(request.DataSource)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", fmt.Sprintf("unknown data source %q", request.DataSource), false, nil)
		return
	}
	if err := deps.Engine.ClearCache(r.Context(), ds, request.Statement); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_CLEAR_FAILED", err.Error(), true, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func runResponse(result engine.Result) runQueryResponse {
	return runQueryResponse{
		Columns:  result.Columns,
		Rows:     result.Rows,
		Error:    result.Error,
		TimedOut: result.TimedOut,
		Cached:   result.Cached,
		CachedAt: result.CachedAt,
	}
}

func userFromRequest(r *http.Request) *engine.UserRef {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return &engine.UserRef{ID: identity.UserID, Name: identity.Name}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
