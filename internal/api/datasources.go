package api

import (
	"fmt"
	"net/http"
)

type dataSourceSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Adapter  string   `json:"adapter"`
	Database string   `json:"database,omitempty"`
	Schemas  []string `json:"schemas"`
}

func handleListDataSources(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	sources := deps.Registry.List()
	summaries := make([]dataSourceSummary, 0, len(sources))
	for _, ds := range sources {
		summaries = append(summaries, dataSourceSummary{
			ID:       ds.ID(),
			Name:     ds.Name(),
			Adapter:  ds.Family().String(),
			Database: ds.Database(),
			Schemas:  ds.SchemaList(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data_sources": summaries})
}

func handleDataSourceTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil || deps.Registry == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ENGINE_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	ds, ok := deps.Registry.Get(id)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", fmt.Sprintf("unknown data source %q", id), false, nil)
		return
	}
	tables, err := deps.Engine.Tables(r.Context(), ds)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TABLES_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data_source": id, "tables": tables})
}
