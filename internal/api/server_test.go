package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/audience-mix/internal/api"
	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/application/service"
	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/metrics"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/storage"
)

func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := service.NewDistributionService(repo, nil, nil, logger)
	server := api.NewServer(api.DefaultConfig(), svc, logger)
	return server, repo
}

func doJSON(t *testing.T, server *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createDistribution(t *testing.T, server *api.Server, body string) dto.DistributionResponse {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/distributions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.DistributionResponse](t, rec)
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	response := decode[dto.HealthResponse](t, rec)
	assert.Equal(t, dto.HealthStatusOK, response.Status)
	assert.Equal(t, int64(2), response.SchemaVersion)
}

func TestServer_HealthEndpoint_StoreUnavailable(t *testing.T) {
	server, repo := newTestServer(t)
	repo.PingErr = errors.New("database is closed")

	rec := doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	response := decode[dto.HealthResponse](t, rec)
	assert.Equal(t, dto.HealthStatusUnavailable, response.Status)
	assert.Contains(t, response.Error, "database is closed")
}

func TestServer_AgePreset(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/presets/age", "")
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[dto.PresetResponse](t, rec)
	assert.Equal(t, "age", response.Name)
	assert.Len(t, response.Brackets, 6)
	assert.Equal(t, distribution.AgeBracketKeys(), response.Buckets.Keys())
	assert.Zero(t, response.Buckets.Sum())
}

func TestServer_DefaultPreset_UsesConfiguredKeys(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewDistributionService(storage.NewMockRepository(), nil, nil, logger,
		service.WithDefaultKeys([]string{"north", "south"}),
	)
	server := api.NewServer(api.DefaultConfig(), svc, logger)

	rec := doJSON(t, server, http.MethodGet, "/api/presets/default", "")
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[dto.PresetResponse](t, rec)
	assert.Equal(t, []string{"north", "south"}, response.Buckets.Keys())
}

func TestServer_DistributionLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	created := createDistribution(t, server, `{"name":"Launch"}`)
	assert.Equal(t, "Launch", created.Name)
	assert.Equal(t, distribution.StatusPristine, created.Status)
	assert.False(t, created.Valid)
	assert.Equal(t, "no allocation yet", created.Reason)

	// Seed the first bucket
	rec := doJSON(t, server, http.MethodPost, "/api/distributions/"+created.ID+"/changes", `{"key":"25-34","value":40}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seeded := decode[dto.ApplyChangeResponse](t, rec)
	assert.True(t, seeded.Seeded)
	assert.Equal(t, 40, seeded.Distribution.Sum)
	assert.Equal(t, distribution.StatusPartial, seeded.Distribution.Status)

	// The next edit settles the distribution at 100
	rec = doJSON(t, server, http.MethodPost, "/api/distributions/"+created.ID+"/changes", `{"key":"18-24","value":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[dto.ApplyChangeResponse](t, rec)
	assert.True(t, settled.Renormalized)
	assert.True(t, settled.Distribution.Valid)
	assert.Equal(t, distribution.Total, settled.Distribution.Sum)
	assert.Equal(t, int64(3), settled.Distribution.Version)

	// History is newest first
	rec = doJSON(t, server, http.MethodGet, "/api/distributions/"+created.ID+"/changes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[dto.ChangeListResponse](t, rec)
	require.Equal(t, 2, history.Count)
	assert.Equal(t, "18-24", history.Changes[0].Key)
	assert.Equal(t, "25-34", history.Changes[1].Key)

	// Reset
	rec = doJSON(t, server, http.MethodPost, "/api/distributions/"+created.ID+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reset := decode[dto.ApplyChangeResponse](t, rec)
	assert.Equal(t, distribution.StatusPristine, reset.Distribution.Status)

	// Delete
	rec = doJSON(t, server, http.MethodDelete, "/api/distributions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/distributions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateWithBuckets_KeepsOrder(t *testing.T) {
	server, _ := newTestServer(t)

	created := createDistribution(t, server, `{"buckets":{"zeta":60,"alpha":40}}`)
	assert.Equal(t, []string{"zeta", "alpha"}, created.Buckets.Keys())
	assert.True(t, created.Valid)
	require.Len(t, created.Summary, 2)
	assert.Equal(t, distribution.TierHigh, created.Summary[0].Tier)

	rec := doJSON(t, server, http.MethodGet, "/api/distributions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Less(t, strings.Index(body, `"zeta"`), strings.Index(body, `"alpha"`))
}

func TestServer_ListDistributions(t *testing.T) {
	server, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		createDistribution(t, server, `{}`)
	}

	rec := doJSON(t, server, http.MethodGet, "/api/distributions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	response := decode[dto.DistributionListResponse](t, rec)
	assert.Equal(t, 3, response.TotalCount)
	assert.Len(t, response.Distributions, 2)
	assert.Equal(t, 2, response.Limit)
}

func TestServer_ErrorMapping(t *testing.T) {
	server, repo := newTestServer(t)
	settled := createDistribution(t, server, `{"keys":["A","B"],"buckets":{"A":50,"B":50}}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/api/distributions", `{"name":`, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"partial create", http.MethodPost, "/api/distributions", `{"buckets":{"A":40,"B":10}}`, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"bucket out of range on create", http.MethodPost, "/api/distributions", `{"buckets":{"A":150,"B":0}}`, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"duplicate bucket on create", http.MethodPost, "/api/distributions", `{"buckets":{"A":10,"A":90}}`, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"bucket out of range on allocate", http.MethodPost, "/api/allocate", `{"buckets":{"A":150,"B":0},"key":"A","value":10}`, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"unknown distribution", http.MethodGet, "/api/distributions/nope", "", http.StatusNotFound, dto.ErrCodeNotFound},
		{"change unknown distribution", http.MethodPost, "/api/distributions/nope/changes", `{"key":"A","value":10}`, http.StatusNotFound, dto.ErrCodeNotFound},
		{"missing key", http.MethodPost, "/api/distributions/" + settled.ID + "/changes", `{"value":10}`, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"missing value", http.MethodPost, "/api/distributions/" + settled.ID + "/changes", `{"key":"A"}`, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"unknown bucket", http.MethodPost, "/api/distributions/" + settled.ID + "/changes", `{"key":"Z","value":10}`, http.StatusUnprocessableEntity, dto.ErrCodeValidation},
		{"history unknown distribution", http.MethodGet, "/api/distributions/nope/changes", "", http.StatusNotFound, dto.ErrCodeNotFound},
		{"delete unknown distribution", http.MethodDelete, "/api/distributions/nope", "", http.StatusNotFound, dto.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, server, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			apiErr := decode[dto.APIError](t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}

	t.Run("version conflict", func(t *testing.T) {
		repo.RecordChangeErr = storage.ErrVersionConflict
		defer func() { repo.RecordChangeErr = nil }()

		rec := doJSON(t, server, http.MethodPost, "/api/distributions/"+settled.ID+"/changes", `{"key":"A","value":70}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, dto.ErrCodeConflict, decode[dto.APIError](t, rec).Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		repo.ListErr = assert.AnError
		defer func() { repo.ListErr = nil }()

		rec := doJSON(t, server, http.MethodGet, "/api/distributions", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, dto.ErrCodeInternalError, decode[dto.APIError](t, rec).Code)
	})
}

func TestServer_Allocate(t *testing.T) {
	server, repo := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/allocate",
		`{"buckets":{"18-24":20,"25-34":20,"35-44":20,"45-54":20,"55-64":10,"65plus":10},"key":"18-24","value":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	response := decode[dto.AllocateResponse](t, rec)
	assert.Equal(t, map[string]int{"18-24": 30, "25-34": 18, "35-44": 17, "45-54": 17, "55-64": 9, "65plus": 9}, response.Buckets.Map())
	assert.True(t, response.Valid)
	assert.Len(t, response.Changes, 6)
	assert.Zero(t, repo.CreateCalls)

	t.Run("no-op returns empty changes", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/allocate", `{"buckets":{"A":60,"B":40},"key":"A","value":60.001}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"changes":[]`)
		assert.True(t, decode[dto.AllocateResponse](t, rec).NoOp)
	})

	t.Run("invalid input", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, doJSON(t, server, http.MethodPost, "/api/allocate", `{"key":"A","value":1}`).Code)
		assert.Equal(t, http.StatusBadRequest, doJSON(t, server, http.MethodPost, "/api/allocate", `{"buckets":{"A":`).Code)
		assert.Equal(t, http.StatusUnprocessableEntity, doJSON(t, server, http.MethodPost, "/api/allocate", `{"buckets":{"A":150},"key":"A","value":1}`).Code)
		assert.Equal(t, http.StatusUnprocessableEntity, doJSON(t, server, http.MethodPost, "/api/allocate", `{"buckets":{"A":100},"key":"B","value":1}`).Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(reg, "test")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	svc := service.NewDistributionService(storage.NewMockRepository(), nil, recorder, logger)
	cfg := api.DefaultConfig()
	cfg.MetricsGatherer = reg
	server := api.NewServer(cfg, svc, logger)

	rec := doJSON(t, server, http.MethodPost, "/api/allocate", `{"buckets":{"A":60,"B":40},"key":"A","value":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_allocator_changes_total{outcome="applied"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("sets CORS headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight advertises only routed methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/distributions", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		rec := httptest.NewRecorder()

		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.NotContains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	})
}
