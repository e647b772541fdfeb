/*
Copyright © 2025 ALESSIO TONIOLO
*/
package dispatcher

import (
	"sync"
)

// EndStatus is the terminal status carried by the last message sent on
// a Bridge. Exactly one is sent per job.
type EndStatus struct {
	Kind UpstreamErrorKind
	Code int    // HTTP status, only meaningful for StatusUpstreamError
	Body string // bounded error-body prefix, only meaningful for StatusUpstreamError
}

// UpstreamErrorKind enumerates the terminal outcomes a bridge can carry.
type UpstreamErrorKind int

const (
	StatusOK UpstreamErrorKind = iota
	StatusUpstreamError
	StatusTimeout
	StatusCancelled
)

func (k UpstreamErrorKind) String() string {
	switch k {
	case StatusOK:
		return "ok"
	case StatusUpstreamError:
		return "upstream_error"
	case StatusTimeout:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// bridgeMsg is the tagged-union value flowing through a Bridge: either
// a Chunk of bytes or (exclusively, exactly once, last) an End status.
type bridgeMsg struct {
	chunk []byte
	end   *EndStatus
}

// Bridge is the bounded channel pairing the scheduler's streaming copy
// loop with the HTTP response body that drains it. The producer side
// is owned by the worker while a job executes; the consumer side is
// owned by the HTTP handler returning the response body. Capacity is
// small on purpose: a slow client backs up the channel, which backs up
// the worker's read from the backend, which is the desired behavior.
type Bridge struct {
	ch   chan bridgeMsg
	gone chan struct{}

	mu           sync.Mutex
	consumerGone bool
	sentEnd      bool
}

func newBridge(capacity int) *Bridge {
	return &Bridge{
		ch:   make(chan bridgeMsg, capacity),
		gone: make(chan struct{}),
	}
}

// SendChunk forwards bytes from the backend to the consumer. It blocks
// if the channel is full (backpressure) and returns an error as soon
// as the consumer detaches (client disconnected), even mid-wait.
func (b *Bridge) SendChunk(p []byte) error {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case b.ch <- bridgeMsg{chunk: cp}:
		return nil
	case <-b.gone:
		return errConsumerGone
	}
}

// SendEnd sends the single terminal message for this job. Calling it
// more than once is a no-op after the first call. If the consumer has
// already detached and the buffer is full, the terminal message is
// dropped rather than blocking forever on a channel nobody drains.
func (b *Bridge) SendEnd(status EndStatus) {
	b.mu.Lock()
	if b.sentEnd {
		b.mu.Unlock()
		return
	}
	b.sentEnd = true
	b.mu.Unlock()

	select {
	case b.ch <- bridgeMsg{end: &status}:
	case <-b.gone:
		select {
		case b.ch <- bridgeMsg{end: &status}:
		default:
		}
	}
}

// ConsumerAlive reports whether the consumer side has not yet
// detached. Used by the scheduler to skip dispatch entirely when a
// client disconnected while its job was still queued.
func (b *Bridge) ConsumerAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.consumerGone
}

// Detach marks the consumer as gone. Called by the HTTP layer when the
// client connection drops. Idempotent.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumerGone {
		return
	}
	b.consumerGone = true
	close(b.gone)
}

// Next blocks for the next message on the bridge: either a chunk of
// bytes, or the terminal end status (in which case chunk is nil and
// end is non-nil). ok is false only if the bridge was abandoned
// without ever sending a terminal message, which should not happen
// under correct scheduler use.
func (b *Bridge) Next() (chunk []byte, end *EndStatus, ok bool) {
	m, ok := <-b.ch
	if !ok {
		return nil, nil, false
	}
	return m.chunk, m.end, true
}

// errConsumerGone is returned by SendChunk when the bridge's consumer
// has detached; the scheduler treats this as client cancellation.
var errConsumerGone = &consumerGoneError{}

type consumerGoneError struct{}

func (*consumerGoneError) Error() string { return "bridge: consumer gone" }

// IsConsumerGone reports whether err is the sentinel returned by
// SendChunk when the bridge's consumer has detached.
func IsConsumerGone(err error) bool {
	_, ok := err.(*consumerGoneError)
	return ok
}
