package api

import (
	"encoding/json"
	"net/http"

	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/pkg/logger"
)

// respondJSON writes a JSON response body.
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps a classified error onto its HTTP status. Internal
// errors (database details, file paths) are NEVER leaked to API consumers:
// 5xx responses carry a generic message while the full error is logged
// server-side.
func respondError(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		logger.Error("unclassified handler error", "error", err.Error())
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "An internal error occurred"})
		return
	}

	switch kind {
	case apperr.Validation:
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case apperr.NotFound:
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case apperr.Conflict:
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.Error("upstream handler error", "error", err.Error())
		respondJSON(w, http.StatusBadGateway, map[string]string{"error": "An upstream service failed"})
	}
}
