package web

import (
	"net/http"

	"github.com/goccy/go-json"
)

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, ErrorJSON{Message: message, Status: status})
}
