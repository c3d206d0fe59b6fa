package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortener/internal/api"
	"shortener/internal/config"
	"shortener/internal/models"
	"shortener/internal/ratelimit"
	"shortener/internal/shortcode"
	"shortener/internal/shorten"
	"shortener/internal/storage"
)

// Integration tests that run the whole service end-to-end over HTTP

const shortURLBase = "https://sho.rt"

type testServer struct {
	*httptest.Server
	client *http.Client
}

// newTestServer builds the service the way the shortener binary does, from
// a YAML config written to a temp dir, backed by SQLite.
func newTestServer(t *testing.T, environment, extraConfig string) *testServer {
	t.Helper()
	tempDir := t.TempDir()

	configFile := filepath.Join(tempDir, "config.yaml")
	content := fmt.Sprintf(`
environment: %s
storage:
  type: sqlite
  database:
    dsn: %q
%s`, environment, filepath.Join(tempDir, "links.db"), extraConfig)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := config.LoadWithEnvFile(configFile, "")
	require.NoError(t, err)

	ctx := context.Background()
	links, err := storage.NewFactory().Create(ctx, cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { links.Close() })

	counters := ratelimit.NewMemoryStore(cfg.Admission.CleanupInterval)
	t.Cleanup(func() { counters.Close() })

	service := shorten.NewService(links, shortcode.NewAllocator(links, cfg.Codes))
	admission := ratelimit.NewAdmission(
		ratelimit.NewMovingWindow(counters, cfg.Admission.StoreTimeout),
		cfg.Admission.ClientIPHeader,
		cfg.IsTrustedContext(),
	)
	guards, err := api.NewRouteGuards(admission, cfg.Admission.Routes)
	require.NoError(t, err)

	handlers := api.NewHandlers(service,
		api.WithStorage(links),
		api.WithCounterStore(counters),
		api.WithShortURLBase(shortURLBase),
		api.WithVersion("integration"),
	)
	srv := httptest.NewServer(api.SetupRoutes(handlers, api.WithRouteGuards(guards)))
	t.Cleanup(srv.Close)

	return &testServer{
		Server: srv,
		client: &http.Client{
			Timeout: 5 * time.Second,
			// Redirects are asserted, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (s *testServer) shorten(t *testing.T, target string) (*http.Response, models.LinkResponse) {
	t.Helper()
	resp, err := s.client.Post(s.URL+"/api/v1/links", "application/json",
		strings.NewReader(fmt.Sprintf(`{"url":%q}`, target)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var link models.LinkResponse
	if resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	}
	return resp, link
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := s.client.Get(s.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIntegration_ShortenRedirectPreview(t *testing.T) {
	s := newTestServer(t, models.EnvironmentDevelopment, "")

	resp, link := s.shorten(t, "https://docs.example.com/guide?page=2")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NoError(t, models.ValidateCode(link.Code))
	assert.Equal(t, shortURLBase+"/"+link.Code, link.ShortURL)
	assert.Equal(t, "example", link.Name)

	// Shortening the same URL again returns the existing link.
	resp, again := s.shorten(t, "https://docs.example.com/guide?page=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, link.Code, again.Code)

	for i := 0; i < 2; i++ {
		redirect := s.get(t, "/"+link.Code)
		assert.Equal(t, http.StatusTemporaryRedirect, redirect.StatusCode)
		assert.Equal(t, "https://docs.example.com/guide?page=2", redirect.Header.Get("Location"))
	}

	preview := s.get(t, "/api/v1/links/"+link.Code)
	require.Equal(t, http.StatusOK, preview.StatusCode)
	var details models.LinkResponse
	require.NoError(t, json.NewDecoder(preview.Body).Decode(&details))
	assert.Equal(t, int64(2), details.AccessCount)
	assert.False(t, details.LastAccessAt.Before(details.CreatedAt))
}

func TestIntegration_InvalidAndUnknown(t *testing.T) {
	s := newTestServer(t, models.EnvironmentDevelopment, "")

	resp, _ := s.shorten(t, "ftp//broken")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, s.get(t, "/Zz99").StatusCode)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/v1/links/Zz99").StatusCode)
}

func TestIntegration_RateLimitedPerRoute(t *testing.T) {
	s := newTestServer(t, models.EnvironmentDevelopment, `
admission:
  routes:
    index: 2
    create: 1
    redirect: 60
    preview: 30
`)

	// Development trusts the peer address, so no proxy header is needed.
	assert.Equal(t, http.StatusOK, s.get(t, "/").StatusCode)
	assert.Equal(t, http.StatusOK, s.get(t, "/").StatusCode)

	limited := s.get(t, "/")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))
	assert.Equal(t, "0", limited.Header.Get("X-RateLimit-Remaining"))

	resp, link := s.shorten(t, "https://example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = s.shorten(t, "https://example.org")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Redirects keep their own budget.
	assert.Equal(t, http.StatusTemporaryRedirect, s.get(t, "/"+link.Code).StatusCode)

	// Health is never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, s.get(t, "/health").StatusCode)
	}
}

func TestIntegration_ProductionRequiresProxyHeader(t *testing.T) {
	s := newTestServer(t, models.EnvironmentProduction, "")

	assert.Equal(t, http.StatusInternalServerError, s.get(t, "/").StatusCode)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", "198.51.100.7")
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_HealthReportsComponents(t *testing.T) {
	s := newTestServer(t, models.EnvironmentDevelopment, "")

	resp := s.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, "integration", health.Version)
	assert.Contains(t, health.Components, "storage")
	assert.Contains(t, health.Components, "counter_store")
}
