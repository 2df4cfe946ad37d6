package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoStore(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	NoStore()(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/r1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	h := Chain(inner, NoStore(), RequestID())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen)

	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r.Header.Set("X-Request-ID", "req-client")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-client", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-client", seen)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-panic")
	w := httptest.NewRecorder()
	Chain(inner, Recovery(zap.New(core)), RequestID(), RequestLogger(zap.NewNop())).ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-panic", entries[0].ContextMap()["request_id"])
}

func runsMux(status int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return mux
}

func TestRequestLogger_RunFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := Chain(runsMux(http.StatusOK), RequestID(), RequestLogger(zap.New(core)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-42", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-42", fields["run_id"])
	assert.Equal(t, "GET /runs/{runID}", fields["route"])
	assert.Equal(t, w.Header().Get("X-Request-ID"), fields["request_id"])
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   zapcore.Level
	}{
		{name: "ready ok", path: "/ready", status: http.StatusOK, want: zapcore.DebugLevel},
		{name: "ready failing", path: "/ready", status: http.StatusServiceUnavailable, want: zapcore.ErrorLevel},
		{name: "unknown run", path: "/runs/missing", status: http.StatusNotFound, want: zapcore.WarnLevel},
		{name: "run ok", path: "/runs/r1", status: http.StatusOK, want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := RequestLogger(zap.New(core))(runsMux(tt.status))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Level)
		})
	}
}

func TestRequestLogger_QuietAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := RequestLogger(zap.New(core))(runsMux(http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Zero(t, logs.Len())
}

func TestOTelTracing_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	OTelTracing()(runsMux(http.StatusAccepted)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}
