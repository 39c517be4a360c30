package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bnema/reelsub/internal/adapter/http/validation"
	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("write json response")
	}
}

// statusFor maps an error onto an HTTP status using the failure taxonomy.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validation.ErrDisallowedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	}

	switch domain.Classify(err) {
	case domain.ErrorKindValidation:
		return http.StatusBadRequest
	case domain.ErrorKindResourceLimit:
		return http.StatusTooManyRequests
	case domain.ErrorKindQuality:
		return http.StatusUnprocessableEntity
	case domain.ErrorKindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", logger.SanitizeForLog(r.URL.Path)).Msg("request failed")
		msg = http.StatusText(status)
	}
	kind := domain.Classify(err)
	if errors.Is(err, validation.ErrDisallowedFileType) {
		kind = domain.ErrorKindValidation
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
