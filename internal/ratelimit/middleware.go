package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"shortener/internal/models"
)

// TooManyRequestsMessage is the user-facing message of a denied request.
const TooManyRequestsMessage = "Limit exceeded for this request to be called"

// Decision is the outcome of an admission check.
type Decision int

const (
	DecisionAdmit Decision = iota
	DecisionDeny
	DecisionStoreUnavailable
)

func (d Decision) String() string {
	switch d {
	case DecisionAdmit:
		return "admit"
	case DecisionDeny:
		return "deny"
	case DecisionStoreUnavailable:
		return "store_unavailable"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Err maps a decision to the matching sentinel error, nil for DecisionAdmit.
func (d Decision) Err() error {
	switch d {
	case DecisionAdmit:
		return nil
	case DecisionDeny:
		return ErrRateLimitExceeded
	default:
		return ErrStoreUnavailable
	}
}

// Admission resolves client identities and checks hits for any number of
// routes. It holds no per-client state; everything mutable lives behind the
// Limiter's counter store.
type Admission struct {
	limiter        Limiter
	clientIPHeader string
	trustedContext bool

	// store outages produce one failure per request; keep the log readable
	storeFailureLog *rate.Sometimes
}

// NewAdmission creates an Admission. clientIPHeader names the header set by
// the trusted reverse proxy; trustedContext enables using the transport peer
// address instead (local development only).
func NewAdmission(limiter Limiter, clientIPHeader string, trustedContext bool) *Admission {
	return &Admission{
		limiter:         limiter,
		clientIPHeader:  clientIPHeader,
		trustedContext:  trustedContext,
		storeFailureLog: &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Guard returns the admission guard of a single route.
func (a *Admission) Guard(routeID string, item Item) *Guard {
	return &Guard{
		admission: a,
		routeID:   routeID,
		item:      item,
	}
}

// ClientIdentity resolves the identity of r.
func (a *Admission) ClientIdentity(r *http.Request) (string, error) {
	return ResolveClientIdentity(r.RemoteAddr, r.Header.Get(a.clientIPHeader), a.trustedContext)
}

// Guard enforces one route's rate for every client.
type Guard struct {
	admission *Admission
	routeID   string
	item      Item
}

// RouteID returns the identifier the guard appends to client identities.
func (g *Guard) RouteID() string { return g.routeID }

// Item returns the route's rate configuration.
func (g *Guard) Item() Item { return g.item }

// CheckAdmission records a unit hit for clientIdentity on this route.
// Failing to reach the counter store yields DecisionStoreUnavailable, which
// callers must treat as a rejection.
func (g *Guard) CheckAdmission(ctx context.Context, clientIdentity string) (Decision, Info) {
	key := RateLimitKey(clientIdentity, g.routeID)

	allowed, info, err := g.admission.limiter.Hit(ctx, key, g.item, 1)
	if err != nil {
		g.admission.storeFailureLog.Do(func() {
			slog.Error("Rate limit store unavailable, rejecting requests",
				"route", g.routeID,
				"error", err,
			)
		})
		return DecisionStoreUnavailable, info
	}
	if !allowed {
		return DecisionDeny, info
	}
	return DecisionAdmit, info
}

// Middleware rejects requests before they reach next unless the route's
// rate admits them.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.admission.ClientIdentity(r)
		if err != nil {
			slog.Error("Client IP is not specified in headers",
				"header", g.admission.clientIPHeader,
				"route", g.routeID,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusInternalServerError, "Internal server error", models.ErrorCodeClientIdentityMissing)
			return
		}

		decision, info := g.CheckAdmission(r.Context(), identity)

		switch decision {
		case DecisionAdmit:
			setRateLimitHeaders(w, info)
			next.ServeHTTP(w, r)
		case DecisionDeny:
			setRateLimitHeaders(w, info)
			retryAfterSecs := int(info.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))

			slog.Warn("Rate limit exceeded",
				"client", identity,
				"route", g.routeID,
				"limit", info.Limit,
				"retry_after", retryAfterSecs,
			)
			writeError(w, http.StatusTooManyRequests, TooManyRequestsMessage, models.ErrorCodeRateLimitExceeded)
		default:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable", models.ErrorCodeServiceUnavailable)
		}
	})
}

// IsStoreFailure reports whether err came from an unreachable counter store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func setRateLimitHeaders(w http.ResponseWriter, info Info) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}
