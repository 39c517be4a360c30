package domain

import (
	"context"
	"errors"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidJobID       = errors.New("invalid job id")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrProgressRegression = errors.New("progress regression")
	ErrJobExists          = errors.New("job already exists")
	ErrCacheMiss          = errors.New("cache miss")

	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidRequest      = errors.New("malformed request")
	ErrInvalidSegments     = errors.New("invalid caption segments")

	ErrQualityValidationFailed  = errors.New("transcription quality validation failed")
	ErrLanguageConfidenceTooLow = errors.New("language confidence too low")
	ErrInsufficientCoverage     = errors.New("insufficient font coverage")

	ErrCostLimitExceeded = errors.New("cost limit exceeded")
	ErrConcurrencyLimit  = errors.New("concurrency limit reached")
	ErrFileTooLarge      = errors.New("file exceeds size limit")

	ErrEmptyOutput       = errors.New("render produced empty output")
	ErrUnsupportedCodec  = errors.New("unsupported codec")
	ErrMissingAudio      = errors.New("media has no audio track")
	ErrDurationExceeded  = errors.New("media duration exceeds policy maximum")
	ErrMalformedResponse = errors.New("malformed collaborator response")

	ErrRetriesExhausted = errors.New("retries exhausted")

	ErrTimeout   = errors.New("job timed out")
	ErrCancelled = errors.New("job cancelled")
)

// ErrorKind is the failure taxonomy used for retry decisions, HTTP mapping
// and the failure reason recorded on a job.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindQuality       ErrorKind = "quality"
	ErrorKindResourceLimit ErrorKind = "resource_limit"
	ErrorKindFatal         ErrorKind = "fatal"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCancelled     ErrorKind = "cancelled"
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable (network failure, upstream 5xx, filter crash).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, ErrInvalidJobID),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrUnsupportedLanguage),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidSegments),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrProgressRegression):
		return ErrorKindValidation
	case errors.Is(err, ErrQualityValidationFailed),
		errors.Is(err, ErrLanguageConfidenceTooLow):
		return ErrorKindQuality
	case errors.Is(err, ErrCostLimitExceeded),
		errors.Is(err, ErrConcurrencyLimit),
		errors.Is(err, ErrFileTooLarge):
		return ErrorKindResourceLimit
	case errors.Is(err, ErrRetriesExhausted):
		return ErrorKindFatal
	case IsTransient(err):
		return ErrorKindTransient
	default:
		return ErrorKindFatal
	}
}
