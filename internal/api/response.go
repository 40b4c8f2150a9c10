package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"agenda/internal/domain"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// writeServiceError maps service errors onto HTTP statuses. Storage failures
// are logged and hidden from the caller.
func writeServiceError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Message, Code: "validation_failed", Field: verr.Field})
	case errors.Is(err, domain.ErrSlotBlocked):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "slot_blocked"})
	case errors.Is(err, domain.ErrSlotTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "slot_taken"})
	case errors.Is(err, domain.ErrRateLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), Code: "rate_limited"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrFeatureNotAvailable):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "feature_not_available"})
	case errors.Is(err, domain.ErrDataAccess):
		logger.Error().Err(err).Msg("storage failure")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, try again", Code: "data_access"})
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func setRetryAfter(w http.ResponseWriter, wait time.Duration) {
	if wait <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
}

// decodeJSON rejects unknown fields and trailing data.
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
