package httpapi

import (
	"encoding/json"
	"net/http"

	"llmd/internal/engine"
	"llmd/internal/hub"
	"llmd/internal/memory"
	"llmd/internal/orchestrator"
	"llmd/internal/registry"
	"llmd/internal/resolver"
	"llmd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case resolver.IsInvalidPath(err):
		return http.StatusBadRequest
	case registry.IsNotFound(err), registry.IsNotDownloaded(err):
		return http.StatusNotFound
	case hub.IsDownloadFailed(err):
		return http.StatusBadGateway
	case memory.IsInsufficientMemory(err):
		return http.StatusInsufficientStorage
	case engine.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case orchestrator.IsParsingFailed(err), orchestrator.IsInvalidResponse(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and emits the JSON payload, bumping the
// admission-rejection counter where applicable.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInsufficientStorage {
		IncrementAdmissionRejection()
	}
	writeJSONError(w, status, err.Error())
}
