package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExecuteSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"done":true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	stream, err := c.Execute(context.Background(), "/api/generate", []byte(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer stream.Body.Close()

	if stream.ContentType != "application/x-ndjson" {
		t.Errorf("unexpected content type: %s", stream.ContentType)
	}
	body, _ := io.ReadAll(stream.Body)
	if string(body) != `{"done":true}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestExecuteNonTwoXX(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not found"))
	}))
	defer ts.Close()

	c := New(ts.URL, 5*time.Second)
	_, err := c.Execute(context.Background(), "/api/generate", []byte(`{}`))
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.Code != 500 {
		t.Errorf("expected code 500, got %d", statusErr.Code)
	}
	if statusErr.Body != "model not found" {
		t.Errorf("unexpected body prefix: %q", statusErr.Body)
	}
}

func TestExecuteConnectionFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	_, err := c.Execute(context.Background(), "/api/generate", []byte(`{}`))
	if err == nil {
		t.Fatal("expected a connection error")
	}

	var connErr *ConnError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnError, got %T: %v", err, err)
	}
}
