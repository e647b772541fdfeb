/*
Copyright © 2025 ALESSIO TONIOLO

registry.go maps user identity to per-user queues and drives the
round-robin rotation order the scheduler drains. A single mutex guards
the map, the ring, and the cursor — critical sections here are O(1)
(map lookup, slice push/pop, cursor advance), so one coarse lock is
adequate, the way the teacher guards its server pool and peer map with
a single mutex each.
*/
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type registryEntry struct {
	queue      *UserQueue
	inRotation bool
}

// Registry owns every UserQueue and the rotation order the scheduler
// consults. The scheduler holds a shared reference to it; Enqueue is
// called from HTTP handler goroutines, TakeNext/OnJobCompleted/GCIdle
// from the single scheduler goroutine.
type Registry struct {
	mu      sync.Mutex
	users   map[string]*registryEntry
	ring    []string
	cursor  int
	inFlight *inFlightRef

	seq atomic.Uint64

	wake chan struct{}

	global GlobalCounters
}

// inFlightRef describes the job currently executing, if any.
type inFlightRef struct {
	User string
	Seq  uint64
}

// GlobalCounters are the process-wide totals from spec.md §3, updated
// atomically so Snapshot never blocks on the registry mutex just to
// read them.
type GlobalCounters struct {
	TotalRequests atomic.Int64
	TotalCompleted atomic.Int64
	TotalCancelled atomic.Int64
	TotalFailed    atomic.Int64
	StartTime      time.Time
}

// NewRegistry constructs an empty registry. startTime is recorded once
// here and reused by Snapshot for uptime calculations.
func NewRegistry() *Registry {
	r := &Registry{
		users: make(map[string]*registryEntry),
		wake:  make(chan struct{}, 1),
	}
	r.global.StartTime = time.Now()
	return r
}

// Wake returns the channel the scheduler parks on when no user is
// active. Enqueue performs a non-blocking send on it.
func (r *Registry) Wake() <-chan struct{} {
	return r.wake
}

func (r *Registry) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Enqueue builds a Job for user, appends it to that user's queue
// (creating the queue on first use), ensures the user is present in
// the rotation order, and wakes the scheduler.
func (r *Registry) Enqueue(ctx context.Context, user, path string, body []byte) *Job {
	r.mu.Lock()
	entry, ok := r.users[user]
	if !ok {
		entry = &registryEntry{queue: newUserQueue()}
		r.users[user] = entry
	}
	seq := r.seq.Add(1)
	j := newJob(ctx, seq, user, path, body)
	entry.queue.Push(j)
	if !entry.inRotation {
		entry.inRotation = true
		r.ring = append(r.ring, user)
	}
	r.mu.Unlock()

	r.global.TotalRequests.Add(1)
	r.notify()
	return j
}

// TakeNext advances the rotation cursor to the next user with a
// pending job and pops one job from them, marking it executing. It
// scans at most len(ring) users so idle-but-not-yet-GC'd entries in
// the ring are skipped without looping forever. Returns ok=false if no
// active user currently has a pending job.
func (r *Registry) TakeNext() (user string, job *Job, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.ring)
	if n == 0 {
		return "", nil, false
	}

	for i := 0; i < n; i++ {
		idx := r.cursor % n
		candidate := r.ring[idx]
		r.cursor = (r.cursor + 1) % n

		entry, exists := r.users[candidate]
		if !exists || entry.queue.Len() == 0 {
			continue
		}

		j := entry.queue.Pop()
		entry.queue.MarkExecuting(j)
		r.inFlight = &inFlightRef{User: candidate, Seq: j.Seq}
		return candidate, j, true
	}
	return "", nil, false
}

// OnJobCompleted clears the executing slot for user and records the
// terminal outcome against that user's cumulative counters. The user
// queue is left in the registry even if now empty; GCIdle reaps it
// later once the idle threshold has elapsed.
func (r *Registry) OnJobCompleted(user string, outcome EndStatus) {
	r.mu.Lock()
	entry, ok := r.users[user]
	if ok {
		entry.queue.ClearExecuting()
		switch outcome.Kind {
		case StatusOK:
			entry.queue.recordCompleted()
		case StatusCancelled:
			entry.queue.recordCancelled()
		default:
			entry.queue.recordFailed()
		}
	}
	if r.inFlight != nil && r.inFlight.User == user {
		r.inFlight = nil
	}
	r.mu.Unlock()

	switch outcome.Kind {
	case StatusOK:
		r.global.TotalCompleted.Add(1)
	case StatusCancelled:
		r.global.TotalCancelled.Add(1)
	default:
		r.global.TotalFailed.Add(1)
	}
}

// RecordCancelledBeforeDispatch handles the early-cancellation path:
// the scheduler popped a job whose consumer was already gone, so the
// backend was never called. The executing slot TakeNext set for it is
// cleared here so the user can become idle again.
func (r *Registry) RecordCancelledBeforeDispatch(user string) {
	r.mu.Lock()
	entry, ok := r.users[user]
	if ok {
		entry.queue.ClearExecuting()
		entry.queue.recordCancelled()
	}
	if r.inFlight != nil && r.inFlight.User == user {
		r.inFlight = nil
	}
	r.mu.Unlock()
	r.global.TotalCancelled.Add(1)
}

// GCIdle removes user queues that are idle (no pending, no executing)
// and have had no activity for at least threshold, dropping them from
// both the map and the rotation ring.
func (r *Registry) GCIdle(now time.Time, threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	newRing := r.ring[:0:0]
	for _, user := range r.ring {
		entry := r.users[user]
		if entry != nil && entry.queue.IsIdle() && now.Sub(entry.queue.LastActivity()) >= threshold {
			delete(r.users, user)
			removed = append(removed, user)
			continue
		}
		newRing = append(newRing, user)
	}
	r.ring = newRing
	if len(r.ring) == 0 {
		r.cursor = 0
	}
	return removed
}

// DrainedJob pairs a job pulled off a queue during shutdown with the
// user identity it belonged to.
type DrainedJob struct {
	User string
	Job  *Job
}

// DrainAll empties every user queue and resets the registry to empty,
// returning every job that was still pending (not yet popped by
// TakeNext). Used only during shutdown: the scheduler cancels and ends
// each returned job rather than dispatching it.
func (r *Registry) DrainAll() []DrainedJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DrainedJob
	for _, user := range r.ring {
		entry, ok := r.users[user]
		if !ok {
			continue
		}
		for {
			j := entry.queue.Pop()
			if j == nil {
				break
			}
			out = append(out, DrainedJob{User: user, Job: j})
		}
	}
	r.ring = nil
	r.cursor = 0
	r.users = make(map[string]*registryEntry)
	return out
}

// UserSnapshot is one row of a stats snapshot: a single user's
// pending depth and cumulative counters, taken together.
type UserSnapshot struct {
	User         string
	PendingDepth int
	Counters     Counters
	LastActivity time.Time
	Executing    bool
}

// InFlight describes the job currently being executed by the
// scheduler, if any.
type InFlight struct {
	User string
	Seq  uint64
}

// Snapshot produces a consistent-per-user view of the registry for
// observers (the stats view and the console dashboard). Snapshots
// across different users may be taken at slightly different moments
// relative to concurrent enqueues, which spec.md explicitly allows.
func (r *Registry) Snapshot() ([]UserSnapshot, *InFlight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]UserSnapshot, 0, len(r.ring))
	for _, user := range r.ring {
		entry := r.users[user]
		if entry == nil {
			continue
		}
		out = append(out, UserSnapshot{
			User:         user,
			PendingDepth: entry.queue.Len(),
			Counters:     entry.queue.Counters(),
			LastActivity: entry.queue.LastActivity(),
			Executing:    entry.queue.Executing() != nil,
		})
	}

	var inFlight *InFlight
	if r.inFlight != nil {
		inFlight = &InFlight{User: r.inFlight.User, Seq: r.inFlight.Seq}
	}
	return out, inFlight
}
