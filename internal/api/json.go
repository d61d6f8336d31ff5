package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string  `json:"error" validate:"required"`
	Status string  `json:"status,omitempty"`
	Result *string `json:"result"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
