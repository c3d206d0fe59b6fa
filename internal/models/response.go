// Package models - HTTP request and response bodies.
//
// Every failure is an ErrorResponse whose Code is one of the constants below;
// clients branch on Code, never on Message.
package models

import (
	"time"
)

// ShortenRequest is the body of a link creation request.
type ShortenRequest struct {
	URL string `json:"url"`
}

// LinkResponse describes a shortened link.
type LinkResponse struct {
	Code         string    `json:"code"`
	ShortURL     string    `json:"short_url"`
	OriginalURL  string    `json:"original_url"`
	Name         string    `json:"name,omitempty"`
	AccessCount  int64     `json:"access_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}

// IndexResponse is served at the service root.
type IndexResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Create  string `json:"create"`
}

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string            `json:"error"` // always "error"
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Error codes, commented with the HTTP status they are served with.
const (
	ErrorCodeNotFound              = "NOT_FOUND"               // 404: Resource doesn't exist
	ErrorCodeBadRequest            = "BAD_REQUEST"             // 400: Invalid request format
	ErrorCodeInvalidURL            = "INVALID_URL"             // 400: URL cannot be shortened
	ErrorCodeInvalidRequest        = "INVALID_REQUEST"         // 400: Invalid request data
	ErrorCodeInternalError         = "INTERNAL_ERROR"          // 500: Server-side error
	ErrorCodeCodeAllocation        = "CODE_ALLOCATION_FAILED"  // 500: No unique code could be allocated
	ErrorCodeClientIdentityMissing = "CLIENT_IDENTITY_MISSING" // 500: Trusted client address header absent
	ErrorCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"     // 429: Too many requests
	ErrorCodeServiceUnavailable    = "SERVICE_UNAVAILABLE"     // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// FromLink fills the response from link, building the short URL on base.
func (r *LinkResponse) FromLink(link *Link, base string) {
	r.Code = link.Code
	r.ShortURL = base + "/" + link.Code
	r.OriginalURL = link.OriginalURL
	r.Name = link.Name
	r.AccessCount = link.AccessCount
	r.CreatedAt = link.CreatedAt
	r.LastAccessAt = link.LastAccessAt
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
