package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	t.Run("all components healthy", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, Version, body["version"])

		components := body["components"].(map[string]interface{})
		assert.Equal(t, "ok", components["database"])
	})

	t.Run("failing probe degrades the service", func(t *testing.T) {
		env := newTestEnv(t)
		env.handlers.AddHealthProbe("redis", func() error {
			return fmt.Errorf("connection refused")
		})

		rec := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "degraded", body["status"])

		components := body["components"].(map[string]interface{})
		assert.Equal(t, "ok", components["database"])
		assert.Equal(t, "unhealthy", components["redis"])
	})
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "CV ATS Optimizer API", body["name"])
	assert.Equal(t, "/docs", body["docs"])

	endpoints := body["endpoints"].(map[string]interface{})
	assert.Equal(t, "/v1/analyze", endpoints["analyze"])
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/no/such/route", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Not found.")
}
