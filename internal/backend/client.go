/*
Copyright © 2025 ALESSIO TONIOLO

client.go issues the single upstream HTTP call the dispatcher ever
makes on behalf of a job. Grounded on the teacher's forwardToServer/
pollServerMetrics request-building style in pkg/proxy/proxy.go: one
shared *http.Client with a tuned Transport, http.NewRequestWithContext,
and bounded draining of non-2xx bodies. No retries — the dispatcher is
explicitly at-most-once.
*/
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrorBodyPrefixLimit bounds how much of a non-2xx response body is
// captured for logging/error reporting.
const ErrorBodyPrefixLimit = 4 * 1024

// Connection pool tuning for the shared *http.Client. Kept local to
// this package rather than in internal/dispatcher's defaults.go: that
// package already imports backend for the Backend interface, so
// backend importing it back for two constants would cycle.
const (
	MaxIdleConnsPerHost = 100
	IdleConnTimeout     = 90 * time.Second
)

// ConnError represents a transport-level failure: connection refused,
// reset, DNS failure, or a request that never got an HTTP response.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string  { return fmt.Sprintf("backend: connection failed: %v", e.Err) }
func (e *ConnError) Unwrap() error  { return e.Err }

// StatusError represents a non-2xx HTTP response from the backend,
// with a bounded prefix of the body captured for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Body)
}

// Stream is a successful backend response: the raw body reader (ready
// to be pumped chunk-by-chunk) and the content type the backend
// reported (application/json when it reports none). The dispatcher does
// not pass ContentType on: the HTTP layer has already answered the
// client with Content-Type: application/json before the backend is
// called.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
}

// Client issues POST requests against a single Ollama-compatible
// backend base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. timeout bounds the total call — from POST
// start to stream end — matching spec.md §4.A's default of 300s.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: MaxIdleConnsPerHost,
				IdleConnTimeout:     IdleConnTimeout,
			},
		},
	}
}

// Execute issues POST <baseURL><path> with the given body and
// Content-Type: application/json, honoring ctx for cancellation and
// the client's configured total-call timeout. On success it returns a
// Stream whose Body the caller must read to completion (or cancel via
// ctx) and Close. On transport failure it returns *ConnError; on a
// non-2xx response it drains a bounded prefix of the body and returns
// *StatusError.
func (c *Client) Execute(ctx context.Context, path string, body []byte) (*Stream, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ConnError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		prefix, _ := io.ReadAll(io.LimitReader(resp.Body, ErrorBodyPrefixLimit))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(prefix)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &Stream{Body: resp.Body, ContentType: contentType}, nil
}
