package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealthPasses(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{
		"status": "ok",
		"service": "noc-validator",
		"version": "1.0.0",
		"services": {
			"database": {"status": "ok"},
			"extraction": {"status": "ok"}
		}
	}`)

	health, err := checkHealth(srv.Client(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "noc-validator", health.Service)
	assert.Equal(t, "ok", health.Services.Extraction.Status)
}

func TestCheckHealthUnconfiguredExtractionStillPasses(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{
		"status": "ok",
		"service": "noc-validator",
		"services": {
			"database": {"status": "ok"},
			"extraction": {"status": "unconfigured"}
		}
	}`)

	health, err := checkHealth(srv.Client(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "unconfigured", health.Services.Extraction.Status)
}

func TestCheckHealthDatabaseDown(t *testing.T) {
	srv := healthServer(t, http.StatusServiceUnavailable, `{
		"status": "error",
		"services": {
			"database": {"status": "error", "error": "connection refused"},
			"extraction": {"status": "ok"}
		}
	}`)

	_, err := checkHealth(srv.Client(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCheckHealthDatabaseErrorInOKResponse(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{
		"status": "ok",
		"services": {
			"database": {"status": "error", "error": "ping timeout"},
			"extraction": {"status": "ok"}
		}
	}`)

	_, err := checkHealth(srv.Client(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping timeout")
}

func TestCheckHealthMalformedBody(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `not json`)

	_, err := checkHealth(srv.Client(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing JSON")
}
