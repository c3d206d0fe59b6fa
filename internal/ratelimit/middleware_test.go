package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortener/internal/models"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newTestRequest(method, path, clientIP string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:40000"
	if clientIP != "" {
		req.Header.Set("X-Real-IP", clientIP)
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestDecision(t *testing.T) {
	assert.Equal(t, "admit", DecisionAdmit.String())
	assert.Equal(t, "deny", DecisionDeny.String())
	assert.Equal(t, "store_unavailable", DecisionStoreUnavailable.String())

	assert.NoError(t, DecisionAdmit.Err())
	assert.ErrorIs(t, DecisionDeny.Err(), ErrRateLimitExceeded)
	assert.ErrorIs(t, DecisionStoreUnavailable.Err(), ErrStoreUnavailable)
}

func TestGuard_CheckAdmission(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	guard := admission.Guard("/api/v1/links", mustPerMinute(t, 2))

	assert.Equal(t, "/api/v1/links", guard.RouteID())
	assert.Equal(t, 2, guard.Item().Limit())

	ctx := context.Background()
	d, _ := guard.CheckAdmission(ctx, "203.0.113.7")
	assert.Equal(t, DecisionAdmit, d)
	d, _ = guard.CheckAdmission(ctx, "203.0.113.7")
	assert.Equal(t, DecisionAdmit, d)
	d, info := guard.CheckAdmission(ctx, "203.0.113.7")
	assert.Equal(t, DecisionDeny, d)
	assert.Equal(t, 2, info.Limit)

	// Another client has its own quota.
	d, _ = guard.CheckAdmission(ctx, "203.0.113.8")
	assert.Equal(t, DecisionAdmit, d)
}

func TestGuard_CheckAdmission_StoreUnavailable(t *testing.T) {
	admission := NewAdmission(NewMovingWindow(&failingStore{}, 0), "X-Real-IP", false)
	guard := admission.Guard("/", mustPerMinute(t, 60))

	d, _ := guard.CheckAdmission(context.Background(), "203.0.113.7")
	assert.Equal(t, DecisionStoreUnavailable, d)
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	handler := admission.Guard("/", mustPerMinute(t, 60)).Middleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_DeniedRequestNeverReachesHandler(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)

	var served atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	handler := admission.Guard("/", mustPerMinute(t, 2)).Middleware(next)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, int32(2), served.Load())

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)

	resp := decodeError(t, rr)
	assert.Equal(t, TooManyRequestsMessage, resp.Message)
	assert.Equal(t, models.ErrorCodeRateLimitExceeded, resp.Code)
}

func TestMiddleware_CreateRouteScenario(t *testing.T) {
	store, clock := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	handler := admission.Guard("/api/v1/links", mustPerMinute(t, 40)).Middleware(http.HandlerFunc(okHandler))

	// 40 requests spread over ten seconds are all admitted.
	for i := 0; i < 40; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newTestRequest("POST", "/api/v1/links", "203.0.113.7"))
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		clock.Advance(250 * time.Millisecond)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("POST", "/api/v1/links", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	clock.Advance(61 * time.Second)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("POST", "/api/v1/links", "203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_RoutesLimitedIndependently(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	create := admission.Guard("/api/v1/links", mustPerMinute(t, 1)).Middleware(http.HandlerFunc(okHandler))
	index := admission.Guard("/", mustPerMinute(t, 1)).Middleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	create.ServeHTTP(rr, newTestRequest("POST", "/api/v1/links", "203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	create.ServeHTTP(rr, newTestRequest("POST", "/api/v1/links", "203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	index.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_ClientsLimitedIndependently(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	handler := admission.Guard("/", mustPerMinute(t, 1)).Middleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.8"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_StoreUnavailable(t *testing.T) {
	store := NewMemoryStore(0)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)

	var served atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
	})
	handler := admission.Guard("/", mustPerMinute(t, 60)).Middleware(next)

	// Simulates a dropped store connection.
	require.NoError(t, store.Close())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "203.0.113.7"))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Zero(t, served.Load())
	assert.Equal(t, models.ErrorCodeServiceUnavailable, decodeError(t, rr).Code)
}

func TestMiddleware_MissingClientIdentity(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)

	var served atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
	})
	handler := admission.Guard("/", mustPerMinute(t, 60)).Middleware(next)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", ""))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, served.Load())
	assert.Equal(t, models.ErrorCodeClientIdentityMissing, decodeError(t, rr).Code)
}

func TestMiddleware_TrustedContextUsesPeer(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", true)
	handler := admission.Guard("/", mustPerMinute(t, 1)).Middleware(http.HandlerFunc(okHandler))

	// No proxy header in development; the peer address identifies the client.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", ""))
	assert.Equal(t, http.StatusOK, rr.Code)

	// A spoofed header does not open a new quota.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("GET", "/", "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMiddleware_ConcurrentRequests(t *testing.T) {
	store, _ := newTestStore(t)
	admission := NewAdmission(NewMovingWindow(store, 0), "X-Real-IP", false)
	handler := admission.Guard("/{code}", mustPerMinute(t, 60)).Middleware(http.HandlerFunc(okHandler))

	var (
		wg    sync.WaitGroup
		ok    atomic.Int32
		limit atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, newTestRequest("GET", "/abcd", "203.0.113.7"))
			switch rr.Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusTooManyRequests:
				limit.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(60), ok.Load())
	assert.Equal(t, int32(40), limit.Load())
}
