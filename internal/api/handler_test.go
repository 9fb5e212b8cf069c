//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func serve(t *testing.T, register func(chi.Router), path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	ok := NewHealthHandler(checkerFunc(func(context.Context) error { return nil }), fixedCount(3))
	w, body := serve(t, ok.RegisterHealth, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(3), body["active_sessions"])

	down := NewHealthHandler(checkerFunc(func(context.Context) error { return errors.New("quota") }), nil)
	w, body = serve(t, down.RegisterHealth, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]interface{})["store"])
}

func TestRecordHandler(t *testing.T) {
	st := store.NewMemory(domain.TrainingRecord{Date: "18.10.2026", LoadType: "medium", Workout: "5km run"})
	h := NewRecordHandler(st, func() string { return "18.10.2026" }, time.Second)

	w, body := serve(t, h.RegisterRoutes, "/api/records/18.10.2026")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5km run", body["workout"])
	assert.Contains(t, body["summary"], "Volume / content: not filled")

	w, body = serve(t, h.RegisterRoutes, "/api/records/today")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "18.10.2026", body["date"])

	w, _ = serve(t, h.RegisterRoutes, "/api/records/31.02.2099")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = serve(t, h.RegisterRoutes, "/api/records/19.10.2026")
	assert.Equal(t, http.StatusNotFound, w.Code)

	st.BeforeFind = func(context.Context, string) error { return domain.ErrUnavailable }
	w, _ = serve(t, h.RegisterRoutes, "/api/records/18.10.2026")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
