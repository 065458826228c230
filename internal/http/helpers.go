package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	applog "receiptscribe/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", applog.FieldError, err, applog.FieldComponent, applog.ComponentHTTP)
	}
}
