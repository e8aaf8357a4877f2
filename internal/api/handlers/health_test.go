package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/api/handlers"
)

type stubChecker struct {
	version int64
	err     error
}

func (c stubChecker) Health(context.Context) (int64, error) {
	return c.version, c.err
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		checker     stubChecker
		wantCode    int
		wantStatus  string
		wantVersion int64
		wantError   string
	}{
		{
			name:        "reports schema version",
			checker:     stubChecker{version: 2},
			wantCode:    http.StatusOK,
			wantStatus:  dto.HealthStatusOK,
			wantVersion: 2,
		},
		{
			name:       "store unreachable",
			checker:    stubChecker{err: errors.New("database is closed")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: dto.HealthStatusUnavailable,
			wantError:  "database is closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewHealthHandler(tt.checker, nil)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var response dto.HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
			assert.Equal(t, tt.wantStatus, response.Status)
			assert.Equal(t, tt.wantVersion, response.SchemaVersion)
			assert.Equal(t, tt.wantError, response.Error)
			assert.NotEmpty(t, response.Timestamp)
		})
	}
}
