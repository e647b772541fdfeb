/*
Copyright © 2025 ALESSIO TONIOLO
*/
package dispatcher

import (
	"context"
	"errors"
)

// ErrMissingUser is returned by Enqueue when the caller supplies an
// empty user identity. The HTTP layer maps this to 400 before any
// queue state is touched.
var ErrMissingUser = errors.New("dispatcher: missing user identity")

// Dispatcher is the facade the HTTP layer talks to: it turns an
// inbound request into a queued Job and hands back a ResponseStream
// the handler drains into the client connection.
type Dispatcher struct {
	registry *Registry
}

// New constructs a Dispatcher backed by registry.
func New(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Enqueue validates user, queues a job for path/body under ctx (tied
// to the inbound request's lifetime), and returns a ResponseStream
// ready to be drained by the caller.
func (d *Dispatcher) Enqueue(ctx context.Context, user, path string, body []byte) (*ResponseStream, error) {
	if user == "" {
		return nil, ErrMissingUser
	}
	job := d.registry.Enqueue(ctx, user, path, body)
	return &ResponseStream{job: job}, nil
}

// Stats returns the current process-wide and per-user snapshot.
func (d *Dispatcher) Stats() Snapshot {
	return d.registry.Stats()
}

// ResponseStream is the consumer side of a job's bridge, handed to the
// HTTP layer. Exactly one of chunk/end is set on each successful Next.
type ResponseStream struct {
	job *Job
}

// RequestID returns the job's unique request identifier, suitable for
// an X-Request-ID response header.
func (s *ResponseStream) RequestID() string {
	return s.job.RequestID
}

// Next blocks for the next chunk or the terminal end status.
func (s *ResponseStream) Next() (chunk []byte, end *EndStatus, ok bool) {
	return s.job.Bridge().Next()
}

// Close marks the consumer as gone, unblocking any scheduler goroutine
// waiting to send on this job's bridge and signalling the
// early-cancellation path if the job is still queued. Idempotent.
func (s *ResponseStream) Close() {
	s.job.Bridge().Detach()
}
