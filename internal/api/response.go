package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// errorBody is the machine-readable error envelope served by the API.
type errorBody struct {
	Error struct {
		Message   string `json:"message"`
		Code      string `json:"code"`
		Timestamp string `json:"timestamp"`
	} `json:"error"`
	StatusCode int `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	body := errorBody{StatusCode: status}
	body.Error.Message = message
	body.Error.Code = code
	body.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, status, body)
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
