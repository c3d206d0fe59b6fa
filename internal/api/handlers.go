package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shortener/internal/models"
	"shortener/internal/shorten"
)

// maxShortenBody bounds the size of a link creation request.
const maxShortenBody = 16 << 10

// Pinger is implemented by every backend the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains HTTP handlers for the shortener API
type Handlers struct {
	service      shorten.ServiceInterface
	storage      Pinger
	counterStore Pinger
	shortURLBase string
	version      string
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStorage sets the link storage probed by the health check.
func WithStorage(s Pinger) HandlerOption {
	return func(h *Handlers) { h.storage = s }
}

// WithCounterStore sets the rate limit counter store probed by the health check.
func WithCounterStore(s Pinger) HandlerOption {
	return func(h *Handlers) { h.counterStore = s }
}

// WithShortURLBase sets the origin short URLs are built on.
func WithShortURLBase(base string) HandlerOption {
	return func(h *Handlers) { h.shortURLBase = strings.TrimRight(base, "/") }
}

// WithVersion sets the version reported by the index and health endpoints.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(service shorten.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service: service,
		version: "unknown",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Index serves the service banner
// GET /
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.IndexResponse{
		Service: "shortener",
		Version: h.version,
		Create:  "POST " + RouteCreate,
	})
}

// Shorten creates a short link. The URL is read from a JSON body
// {"url": "..."} or from the "url" form field.
// POST /api/v1/links
func (h *Handlers) Shorten(w http.ResponseWriter, r *http.Request) {
	rawURL, err := readShortenRequest(w, r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
		return
	}

	link, created, err := h.service.Shorten(r.Context(), rawURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var resp models.LinkResponse
	resp.FromLink(link, h.shortURLBase)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSONResponse(w, status, resp)
}

// Redirect sends the client to the original URL of a code
// GET /{code}
func (h *Handlers) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	link, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, link.OriginalURL, http.StatusTemporaryRedirect)
}

// Preview returns the details of a link without following it
// GET /api/v1/links/{code}
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	link, err := h.service.Preview(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var resp models.LinkResponse
	resp.FromLink(link, h.shortURLBase)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck reports the state of link storage and the counter store.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	probe := func(name string, p Pinger, okMsg string) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			response.Status = models.StatusUnhealthy
			response.AddComponent(name, models.StatusUnhealthy, err.Error())
			return
		}
		response.AddComponent(name, models.StatusHealthy, okMsg)
	}
	probe("storage", h.storage, "Storage is operational")
	probe("counter_store", h.counterStore, "Rate limit store is operational")

	status := http.StatusOK
	if response.Status != models.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

func readShortenRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxShortenBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req models.ShortenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return req.URL, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form body")
	}
	return r.PostForm.Get("url"), nil
}

// writeServiceError translates service errors into error responses
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *shorten.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = shorten.NewInternalError("Internal server error", err)
	}

	if svcErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"path", r.URL.Path,
			"code", svcErr.Code,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	errorResp := models.NewErrorResponse(svcErr.Message, svcErr.Code)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, svcErr.StatusCode, errorResp)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; only log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
