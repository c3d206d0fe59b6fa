package shorten

import (
	"fmt"
	"net/http"

	"shortener/internal/models"
)

// ServiceError represents errors from the shorten service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewLinkNotFoundError(code string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    fmt.Sprintf("link '%s' not found", code),
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidURLError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidURL,
		Message:    "Invalid URL",
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewAllocationError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeCodeAllocation,
		Message:    "could not allocate a short code",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
