/*
Copyright © 2025 ALESSIO TONIOLO
*/
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one queued forwarded request. It is owned by exactly one
// UserQueue until popped, then by the Scheduler for the duration of
// execution, then discarded.
type Job struct {
	Seq       uint64
	RequestID string
	User      string
	Path      string
	Body      []byte
	CreatedAt time.Time

	bridge *Bridge

	ctx    context.Context
	cancel context.CancelFunc
}

// newJob builds a Job with a fresh bridge and a cancellation context
// derived from parent (typically the inbound HTTP request's context,
// so it fires when the client goes away). RequestID
// is a fresh UUID, independent of Seq, so it stays stable and
// unguessable even if logs are correlated across process restarts.
func newJob(parent context.Context, seq uint64, user, path string, body []byte) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		Seq:       seq,
		RequestID: uuid.NewString(),
		User:      user,
		Path:      path,
		Body:      body,
		CreatedAt: time.Now(),
		bridge:    newBridge(DefaultBridgeCapacity),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context returns the cancellation context composed for this job: it
// fires when the client goes away, the scheduler tears it down after
// completion, or the process is shutting down.
func (j *Job) Context() context.Context {
	return j.ctx
}

// Cancel fires the job's cancellation signal. Safe to call multiple
// times; only the first call has an effect.
func (j *Job) Cancel() {
	j.cancel()
}

// Bridge returns the job's response bridge.
func (j *Job) Bridge() *Bridge {
	return j.bridge
}
