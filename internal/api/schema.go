package api

import (
	"errors"
	"net/http"

	"github.com/AbhiSondakar/NLIDB/internal/schema"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.SchemaSource == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	description, err := deps.SchemaSource.Describe(r.Context(), deps.SchemaAllowList)
	if err != nil {
		switch {
		case errors.Is(err, schema.ErrNoTables):
			writeError(r.Context(), w, http.StatusNotFound, "NO_TABLES", err.Error(), false, nil)
		case errors.Is(err, schema.ErrNoAllowedTables):
			writeError(r.Context(), w, http.StatusNotFound, "NO_ALLOWED_TABLES", err.Error(), false, map[string]any{"allow_list": deps.SchemaAllowList})
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schema":     description,
		"allow_list": deps.SchemaAllowList,
	})
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.SchemaRefresher == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_REFRESH_NOT_CONFIGURED", "schema cache is not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	deps.SchemaRefresher.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed"})
}
