package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/legalsift/legalsift/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server.response_encode_error", "error", err)
	}
}

// writeError maps the error onto its HTTP status and emits the standard
// error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := common.HTTPStatus(err)
	writeJSON(w, status, map[string]any{"detail": err.Error()})
}
