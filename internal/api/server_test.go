package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/config"
	"github.com/restomenu/menu-crawler/internal/menu"
)

type stubService struct {
	crawlOut   menu.CrawlOutcome
	crawlErr   error
	crawlURL   string
	crawlName  string
	processOut menu.ProcessOutcome
	processErr error
	limit      int
	cleanup    bool
	stats      menu.QueueStats
	statsErr   error
	cleared    int64
	refreshed  int
	refreshErr error
}

func (s *stubService) CrawlAndPersist(_ context.Context, sectionURL, sectionName string) (menu.CrawlOutcome, error) {
	s.crawlURL, s.crawlName = sectionURL, sectionName
	return s.crawlOut, s.crawlErr
}

func (s *stubService) ProcessImageQueue(_ context.Context, limit int, cleanup bool) (menu.ProcessOutcome, error) {
	s.limit, s.cleanup = limit, cleanup
	return s.processOut, s.processErr
}

func (s *stubService) QueueStats(context.Context) (menu.QueueStats, error) {
	return s.stats, s.statsErr
}

func (s *stubService) ClearImageQueue(context.Context) (int64, error) {
	return s.cleared, nil
}

func (s *stubService) RefreshCategoryImages(context.Context) (int, error) {
	return s.refreshed, s.refreshErr
}

func newTestServer(svc Service, cfg config.Config) *httptest.Server {
	return httptest.NewServer(NewServer(svc, cfg, zap.NewNop()).Handler())
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubService{}, config.Config{})
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		require.NoError(t, resp.Body.Close())
	}
}

func TestCrawlEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubService{crawlOut: menu.CrawlOutcome{DishesFound: 12, Added: 10, Skipped: 2}}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/crawl", map[string]string{
		"section_url":  "https://nsm-22.ru/menu/pizza/",
		"section_name": "Пицца",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out menu.CrawlOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, svc.crawlOut, out)
	require.Equal(t, "https://nsm-22.ru/menu/pizza/", svc.crawlURL)
	require.Equal(t, "Пицца", svc.crawlName)
}

func TestCrawlEndpointEmptyBodyMeansFullMenu(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/crawl", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, svc.crawlURL)
}

func TestCrawlEndpointStatusMapping(t *testing.T) {
	t.Parallel()

	svc := &stubService{crawlErr: errors.New("site unreachable")}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/crawl", map[string]string{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	bad, err := http.Post(srv.URL+"/v1/crawl", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestProcessImagesEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubService{processOut: menu.ProcessOutcome{Downloaded: 3, Skipped: 1, Total: 4}}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/images/process", map[string]any{
		"limit":   5,
		"cleanup": true,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 5, svc.limit)
	require.True(t, svc.cleanup)

	// No body: the default batch size applies.
	resp2, err := http.Post(srv.URL+"/v1/images/process", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, defaultProcessLimit, svc.limit)
}

func TestQueueEndpoints(t *testing.T) {
	t.Parallel()

	svc := &stubService{
		stats:   menu.QueueStats{Total: 7, Pending: 4, Failed: 3},
		cleared: 7,
	}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/images/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats menu.QueueStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, svc.stats, stats)

	del := doJSON(t, http.MethodDelete, srv.URL+"/v1/images/queue", nil)
	defer del.Body.Close()
	require.Equal(t, http.StatusOK, del.StatusCode)
	var cleared map[string]int64
	require.NoError(t, json.NewDecoder(del.Body).Decode(&cleared))
	require.Equal(t, int64(7), cleared["deleted"])
}

func TestRefreshCategoryImagesEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubService{refreshed: 2}
	srv := newTestServer(svc, config.Config{})
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/categories/refresh-images", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out["updated"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	srv := newTestServer(&stubService{}, cfg)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/images/stats")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/images/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, authed.Body.Close())
	require.Equal(t, http.StatusOK, authed.StatusCode)

	// Health and metrics need no key even with auth enabled.
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
