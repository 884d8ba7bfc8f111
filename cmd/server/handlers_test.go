package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/lychee-technology/breeze"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSaveManager struct {
	bundle *breeze.SaveBundle
	result *breeze.SaveResult
	err    error
}

func (m *mockSaveManager) SaveChanges(_ context.Context, bundle *breeze.SaveBundle, _ ...breeze.SaveOption) (*breeze.SaveResult, error) {
	m.bundle = bundle
	return m.result, m.err
}

func newTestServer(manager breeze.SaveManager, health func(context.Context) error) *Server {
	server := NewServer(manager, health, prometheus.NewRegistry())
	server.RegisterRoutes()
	return server
}

func postSave(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/breeze/SaveChanges", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleSaveChangesSuccess(t *testing.T) {
	manager := &mockSaveManager{result: &breeze.SaveResult{
		Entities:    []breeze.SavedEntity{{EntityTypeName: "Customer:#Sales", State: breeze.EntityStateAdded, Values: map[string]any{"id": 101}}},
		KeyMappings: []breeze.KeyMapping{{EntityTypeName: "Customer:#Sales", TempValue: -1, RealValue: 101}},
	}}
	server := newTestServer(manager, nil)

	rec := postSave(t, server, `{
		"entities": [
			{"id": -1, "name": "Ada", "entityAspect": {"entityTypeName": "Customer:#Sales", "entityState": "Added"}}
		],
		"saveOptions": {"tag": "import"}
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, manager.bundle)
	require.Len(t, manager.bundle.Entities, 1)
	assert.Equal(t, "import", manager.bundle.SaveOptions.Tag)
	assert.Equal(t, "Ada", manager.bundle.Entities[0]["name"])

	var resp breeze.SaveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.KeyMappings, 1)
	assert.EqualValues(t, 101, resp.KeyMappings[0].RealValue)
}

func TestHandleSaveChangesErrors(t *testing.T) {
	et := &breeze.EntityType{Name: "Customer", DataProperties: []*breeze.DataProperty{{Name: "id", IsPartOfKey: true}}}
	info := &breeze.EntityInfo{EntityType: et, State: breeze.EntityStateModified, Entity: breeze.Entity{"id": 4}}

	tests := []struct {
		name       string
		manager    *mockSaveManager
		wantStatus int
		wantErrors int
	}{
		{
			name:       "concurrency",
			manager:    &mockSaveManager{err: breeze.NewConcurrencyError(info, 0)},
			wantStatus: http.StatusConflict,
			wantErrors: 1,
		},
		{
			name:       "configuration",
			manager:    &mockSaveManager{err: breeze.NewUnknownEntityTypeError("Invoice", errors.New("not found"))},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store",
			manager:    &mockSaveManager{err: breeze.NewStoreError(breeze.ErrCodeInsertFailed, info, errors.New("disk full"))},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "plain error",
			manager:    &mockSaveManager{err: fmt.Errorf("boom")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "validation result",
			manager: &mockSaveManager{result: &breeze.SaveResult{
				Errors:  []breeze.EntityError{{EntityTypeName: "Customer", ErrorName: breeze.ErrCodeValidationError}},
				Message: "rejected",
			}},
			wantStatus: http.StatusBadRequest,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(tt.manager, nil)
			rec := postSave(t, server, `{"entities": []}`)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp saveErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Message)
			assert.Len(t, resp.Errors, tt.wantErrors)
		})
	}
}

func TestHandleSaveChangesBadRequest(t *testing.T) {
	server := newTestServer(&mockSaveManager{}, nil)

	rec := postSave(t, server, `{"entities": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid json body")

	req := httptest.NewRequest(http.MethodGet, "/breeze/SaveChanges", nil)
	rec = httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	healthy := newTestServer(&mockSaveManager{}, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(&mockSaveManager{}, func(context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	down.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "connection refused"))
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(&mockSaveManager{}, nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DIALECT", "sqlite")
	t.Setenv("SAVE_MAX_ENTITIES", "50")
	t.Setenv("SAVE_VALIDATE_PAYLOADS", "true")
	t.Setenv("SAVE_TIMEOUT_SECONDS", "5")
	t.Setenv("DB_PORT", "not-a-number")

	config := loadConfig()
	assert.Equal(t, breeze.DialectSQLite, config.Save.Dialect)
	assert.Equal(t, 50, config.Save.MaxEntities)
	assert.True(t, config.Save.ValidatePayloads)
	assert.Equal(t, "5s", config.Save.Timeout.String())
	assert.Equal(t, 5432, config.Database.Port)
	assert.NoError(t, config.Validate())
}
