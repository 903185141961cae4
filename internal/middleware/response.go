package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/types"
	"github.com/Rorqualx/proxydl/pkg/version"
)

// writeErrorResponse answers with the control API's error body, so clients
// parse middleware rejections like command failures.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Int("status", statusCode).Msg("Failed to encode middleware error response")
	}
}
