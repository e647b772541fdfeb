package httpapi

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ollamamq/internal/backend"
	"ollamamq/internal/dispatcher"
)

type fakeBackend struct {
	next func(path string) (*backend.Stream, error)
}

func (f *fakeBackend) Execute(ctx context.Context, path string, body []byte) (*backend.Stream, error) {
	return f.next(path)
}

func newTestServer(t *testing.T, be dispatcher.Backend) *Server {
	t.Helper()
	registry := dispatcher.NewRegistry()
	logger := log.New(io.Discard, "", 0)
	sched := dispatcher.NewScheduler(registry, be, logger, nil, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx)

	disp := dispatcher.New(registry)
	return New(":0", disp, logger)
}

func TestHandleForwardMissingUser(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) {
		return &backend.Stream{Body: io.NopCloser(strings.NewReader("{}")), ContentType: "application/json"}, nil
	}}
	server := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(`{"model":"llama3"}`)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing X-User-ID, got %d", rec.Code)
	}
}

func TestHandleForwardStreamsBody(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) {
		return &backend.Stream{Body: io.NopCloser(strings.NewReader(`{"response":"hi"}`)), ContentType: "application/json"}, nil
	}}
	server := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(`{"model":"llama3"}`)))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"response":"hi"}` {
		t.Errorf("unexpected body: %q", got)
	}
}

func TestHandleForwardUnknownPath(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) { return nil, nil }}
	server := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodGet, "/not-a-route", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unrouted path, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) { return nil, nil }}
	server := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", rec.Code)
	}
	if got, want := rec.Header().Get("Content-Type"), "application/json"; got != want {
		t.Errorf("expected Content-Type %q, got %q", want, got)
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("unexpected body: %q", got)
	}
}

func TestHandleForwardMissingUserBodyIsJSON(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) { return nil, nil }}
	server := newTestServer(t, be)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if got, want := rec.Header().Get("Content-Type"), "application/json"; got != want {
		t.Errorf("expected Content-Type %q, got %q", want, got)
	}
	if !strings.HasPrefix(rec.Body.String(), `{"error":`) {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestHandleForwardRejectsDuringShutdown(t *testing.T) {
	be := &fakeBackend{next: func(path string) (*backend.Stream, error) {
		return &backend.Stream{Body: io.NopCloser(strings.NewReader("{}")), ContentType: "application/json"}, nil
	}}
	server := newTestServer(t, be)
	server.shuttingDown.Store(true)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(`{"model":"llama3"}`)))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while shutting down, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), `{"error":`) {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
}
