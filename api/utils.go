package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"leadscore-backtest/logger"
)

// maxRequestBytes bounds request bodies; a full batch fits comfortably.
const maxRequestBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// respondWithError logs the error and sends a JSON error response.
// Internal errors are logged but only message reaches the client.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("path", r.URL.Path),
		zap.String(logger.FieldRequestID, RequestID(r.Context())),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error(message, fields...)
	} else {
		s.log.Info(message, fields...)
	}
	writeJSON(w, code, errorResponse{Error: message, RequestID: RequestID(r.Context())})
}
