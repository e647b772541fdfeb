/*
Copyright © 2025 ALESSIO TONIOLO
*/
package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"ollamamq/internal/dispatcher"
)

const userIDHeader = "X-User-ID"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// writeJSONError writes a short {"error":"..."} body at the given
// status code. Enqueue-time rejections (missing user, shutdown, body
// too large, enqueue failure) all report through this rather than
// http.Error's plain text, since the client always expects JSON.
func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}

// handleForward is the single entry point for every forwarded request
// shape (/api/generate, /api/chat, /v1/chat/completions,
// /v1/completions). It validates the user identity, caps the body
// size, enqueues the job, sends 200 immediately, and streams whatever
// the backend produces until a terminal End arrives.
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		s.totalRejected.Add(1)
		writeJSONError(w, "dispatcher is shutting down", http.StatusServiceUnavailable)
		return
	}

	user := r.Header.Get(userIDHeader)
	if user == "" {
		s.totalRejected.Add(1)
		writeJSONError(w, "missing "+userIDHeader+" header", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.totalRejected.Add(1)
		writeJSONError(w, "request body too large or unreadable", http.StatusBadRequest)
		return
	}

	stream, err := s.dispatcher.Enqueue(r.Context(), user, r.URL.Path, body)
	if err != nil {
		s.totalRejected.Add(1)
		if errors.Is(err, dispatcher.ErrMissingUser) {
			writeJSONError(w, "missing user identity", http.StatusBadRequest)
			return
		}
		writeJSONError(w, "failed to enqueue request", http.StatusInternalServerError)
		return
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-r.Context().Done():
			stream.Close()
		case <-done:
		}
	}()
	defer close(done)
	defer stream.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", stream.RequestID())
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		chunk, end, ok := stream.Next()
		if !ok {
			s.logger.Printf("[HTTP] bridge closed without terminal status for user=%s", user)
			return
		}
		if chunk != nil {
			if _, writeErr := w.Write(chunk); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if end != nil {
			if end.Kind != 0 {
				s.logger.Printf("[HTTP] request for user=%s ended with %s", user, end.Kind)
			}
			return
		}
	}
}
