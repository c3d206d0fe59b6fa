package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"shortener/internal/models"
	"shortener/internal/ratelimit"
)

// Route templates. Each rate limited route uses its template as the route
// identifier appended to the client identity.
const (
	RouteIndex    = "/"
	RouteCreate   = "/api/v1/links"
	RouteRedirect = "/{code}"
	RoutePreview  = "/api/v1/links/{code}"
	RouteHealth   = "/health"
)

// RouteGuards holds the admission guard of every rate limited route.
// A nil guard leaves its route unlimited.
type RouteGuards struct {
	Index    *ratelimit.Guard
	Create   *ratelimit.Guard
	Redirect *ratelimit.Guard
	Preview  *ratelimit.Guard
}

// NewRouteGuards builds one guard per route from the configured rates.
func NewRouteGuards(admission *ratelimit.Admission, limits models.RouteLimits) (RouteGuards, error) {
	var guards RouteGuards

	routes := []struct {
		id   string
		rate int
		dst  **ratelimit.Guard
	}{
		{RouteIndex, limits.Index, &guards.Index},
		{RouteCreate, limits.Create, &guards.Create},
		{RouteRedirect, limits.Redirect, &guards.Redirect},
		{RoutePreview, limits.Preview, &guards.Preview},
	}
	for _, rt := range routes {
		item, err := ratelimit.PerMinute(rt.rate)
		if err != nil {
			return RouteGuards{}, fmt.Errorf("route %s: %w", rt.id, err)
		}
		*rt.dst = admission.Guard(rt.id, item)
	}

	return guards, nil
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeSettings)

type routeSettings struct {
	guards      RouteGuards
	middlewares []mux.MiddlewareFunc
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(s *routeSettings) {
		s.middlewares = append(s.middlewares, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != RouteHealth && r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRouteGuards enables per-route admission control.
func WithRouteGuards(guards RouteGuards) RouteOption {
	return func(s *routeSettings) { s.guards = guards }
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, opts ...RouteOption) *mux.Router {
	var settings routeSettings
	for _, opt := range opts {
		opt(&settings)
	}

	router := mux.NewRouter()
	for _, mw := range settings.middlewares {
		router.Use(mw)
	}
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	g := settings.guards

	// Health is registered first so /health never matches /{code}.
	router.HandleFunc(RouteHealth, handlers.HealthCheck).Methods(http.MethodGet)

	router.Handle(RouteIndex, guarded(g.Index, handlers.Index)).Methods(http.MethodGet)
	router.Handle(RouteCreate, guarded(g.Create, handlers.Shorten)).Methods(http.MethodPost)
	router.Handle(RoutePreview, guarded(g.Preview, handlers.Preview)).Methods(http.MethodGet)
	router.Handle(RouteRedirect, guarded(g.Redirect, handlers.Redirect)).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}

func guarded(guard *ratelimit.Guard, h http.HandlerFunc) http.Handler {
	if guard == nil {
		return h
	}
	return guard.Middleware(h)
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest)
	json.NewEncoder(w).Encode(errorResp)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	errorResp := models.NewErrorResponse("Not found", models.ErrorCodeNotFound)
	json.NewEncoder(w).Encode(errorResp)
}
