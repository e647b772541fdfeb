/*
Copyright © 2025 ALESSIO TONIOLO

server.go wires the HTTP listener the way the teacher's HttpProxy does
in pkg/proxy/proxy.go: a single Handler() built from a path switch,
Start/Stop lifecycle methods, and atomic request counters.
*/
package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"ollamamq/internal/dispatcher"
)

// MaxBodyBytes bounds the size of an inbound request body. Supplements
// the distilled spec, which is silent on body limits; grounded on the
// original Rust dispatcher's 50MiB DefaultBodyLimit.
const MaxBodyBytes = 50 * 1024 * 1024

// Server is the HTTP front door for the dispatcher.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	logger     *log.Logger
	httpServer *http.Server

	totalRequests atomic.Int64
	totalRejected atomic.Int64

	shuttingDown atomic.Bool
}

// New constructs a Server bound to addr (":<port>") and backed by d.
func New(addr string, d *dispatcher.Dispatcher, logger *log.Logger) *Server {
	s := &Server{dispatcher: d, logger: logger}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the root http.Handler, routed by exact path the same
// way the teacher's proxy switches on r.URL.Path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.totalRequests.Add(1)

		switch r.URL.Path {
		case "/health":
			s.handleHealth(w, r)
			return
		case "/api/generate", "/api/chat", "/v1/chat/completions", "/v1/completions":
			s.handleForward(w, r)
			return
		default:
			s.totalRejected.Add(1)
			http.NotFound(w, r)
		}
	})
}

// Start begins serving and blocks until the listener stops.
// ListenAndServe's own http.ErrServerClosed is swallowed, matching how
// the teacher's Start/Stop pair treats a clean shutdown as success.
func (s *Server) Start() error {
	s.logger.Printf("[HTTP] listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the listener down within the given timeout.
// New calls to handleForward are rejected with 503 from the moment
// Stop is called, before the listener itself finishes draining.
func (s *Server) Stop(timeout time.Duration) error {
	s.shuttingDown.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
