package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/config"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.ServerConfig) (*server, store.Store) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	srv, ok := NewServer(log, cfg, st).(*server)
	require.True(t, ok)

	t.Cleanup(func() {
		_ = srv.Stop()
		_ = st.Stop()
	})

	return srv, st
}

func seedBuilds(t *testing.T, st store.Store) (uint, uint) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	first, err := st.Save(ctx, &build.Build{
		Timestamp: now.Add(-time.Hour),
		Bundles:   []build.Bundle{{Name: "main.js", Size: 1000}},
	})
	require.NoError(t, err)

	perf := 90.0

	second, err := st.Save(ctx, &build.Build{
		Timestamp: now,
		Bundles:   []build.Bundle{{Name: "main.js", Size: 1500}},
		Metrics:   &build.Metrics{Performance: &perf},
	})
	require.NoError(t, err)

	return first, second
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{})

	rec := doGet(t, srv.buildRouter(), "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ListBuilds(t *testing.T) {
	srv, st := newTestServer(t, &config.ServerConfig{})
	first, second := seedBuilds(t, st)
	router := srv.buildRouter()

	tests := []struct {
		name     string
		path     string
		status   int
		expected []uint
	}{
		{name: "default order", path: "/api/v1/builds", status: http.StatusOK, expected: []uint{second, first}},
		{name: "ascending", path: "/api/v1/builds?order=asc", status: http.StatusOK, expected: []uint{first, second}},
		{name: "limited", path: "/api/v1/builds?limit=1", status: http.StatusOK, expected: []uint{second}},
		{name: "bad limit", path: "/api/v1/builds?limit=0", status: http.StatusBadRequest},
		{name: "non numeric limit", path: "/api/v1/builds?limit=ten", status: http.StatusBadRequest},
		{name: "bad order", path: "/api/v1/builds?order=sideways", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, router, tt.path)
			require.Equal(t, tt.status, rec.Code)

			if tt.status != http.StatusOK {
				return
			}

			var resp struct {
				Builds []build.Build `json:"builds"`
			}

			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

			ids := make([]uint, 0, len(resp.Builds))
			for _, b := range resp.Builds {
				ids = append(ids, b.ID)
			}

			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestServer_GetBuild(t *testing.T) {
	srv, st := newTestServer(t, &config.ServerConfig{})
	_, second := seedBuilds(t, st)
	router := srv.buildRouter()

	rec := doGet(t, router, "/api/v1/builds/"+itoa(second))
	require.Equal(t, http.StatusOK, rec.Code)

	var b build.Build

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, second, b.ID)
	require.NotNil(t, b.Metrics)
	require.NotNil(t, b.Metrics.Performance)
	assert.InDelta(t, 90.0, *b.Metrics.Performance, 1e-9)

	assert.Equal(t, http.StatusNotFound, doGet(t, router, "/api/v1/builds/9999").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, router, "/api/v1/builds/abc").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, router, "/api/v1/builds/0").Code)
}

func TestServer_CompareBuilds(t *testing.T) {
	srv, st := newTestServer(t, &config.ServerConfig{})
	first, second := seedBuilds(t, st)
	router := srv.buildRouter()

	rec := doGet(t, router, "/api/v1/builds/"+itoa(first)+"/compare/"+itoa(second))
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp build.Comparison

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.Len(t, cmp.BundleDiff, 1)
	assert.Equal(t, int64(500), cmp.BundleDiff[0].Delta)

	assert.Equal(t, http.StatusNotFound,
		doGet(t, router, "/api/v1/builds/"+itoa(first)+"/compare/9999").Code)
}

func TestServer_Trends(t *testing.T) {
	srv, st := newTestServer(t, &config.ServerConfig{})
	seedBuilds(t, st)
	router := srv.buildRouter()

	rec := doGet(t, router, "/api/v1/trends?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Days   int                `json:"days"`
		Points []build.TrendPoint `json:"points"`
	}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	assert.NotEmpty(t, resp.Points)

	assert.Equal(t, http.StatusBadRequest, doGet(t, router, "/api/v1/trends?days=0").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, router, "/api/v1/trends?days=9999").Code)
}

func TestServer_RateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2},
	})
	router := srv.buildRouter()

	assert.Equal(t, http.StatusOK, doGet(t, router, "/api/v1/builds").Code)
	assert.Equal(t, http.StatusOK, doGet(t, router, "/api/v1/builds").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(t, router, "/api/v1/builds").Code)

	// Health checks are never limited.
	assert.Equal(t, http.StatusOK, doGet(t, router, "/api/v1/health").Code)
}

func TestServer_CORS(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{
		CORSOrigins: []string{"https://dash.example.com"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://dash.example.com")

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com",
		rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStop(t *testing.T) {
	srv, _ := newTestServer(t, &config.ServerConfig{Listen: "127.0.0.1:0"})

	require.NoError(t, srv.Start(context.Background()))
	require.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)

	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, srv.Stop())
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		remote   string
		expected string
	}{
		{name: "remote addr", remote: "10.0.0.1:1234", expected: "10.0.0.1"},
		{name: "forwarded chain", xff: "1.2.3.4, 10.0.0.1", remote: "10.0.0.2:1", expected: "1.2.3.4"},
		{name: "no port", remote: "10.0.0.3", expected: "10.0.0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.expected, extractIP(req))
		})
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestServer_Metrics(t *testing.T) {
	srv, st := newTestServer(t, &config.ServerConfig{})
	seedBuilds(t, st)
	router := srv.buildRouter()

	require.Equal(t, http.StatusOK, doGet(t, router, "/api/v1/builds").Code)
	srv.ObserveCleanup(3)

	rec := doGet(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `bundleoor_http_requests_total{method="GET",route="/api/v1/builds",status="200"} 1`)
	assert.Contains(t, body, "bundleoor_latest_build_total_size_bytes 1500")
	assert.Contains(t, body, `bundleoor_latest_build_bundle_size_bytes{bundle="main.js",status="ok"} 1500`)
	assert.Contains(t, body, `bundleoor_latest_build_metric{name="performance"} 90`)
	assert.Contains(t, body, "bundleoor_retention_builds_deleted_total 3")
}
