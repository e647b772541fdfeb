/*
Copyright © 2025 ALESSIO TONIOLO

scheduler.go is the single goroutine that drains the Registry in
round-robin order and drives each job's Bridge to exactly one terminal
End. Grounded on the teacher's LoadBalancer.healthCheckLoop/run-style
ticker+select worker loop in pkg/cluster/loadbalancer.go, generalized
from health polling to request dispatch.
*/
package dispatcher

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"ollamamq/internal/backend"
)

// Backend is the contract the scheduler needs from an upstream client.
// internal/backend.Client satisfies it; tests substitute a fake.
type Backend interface {
	Execute(ctx context.Context, path string, body []byte) (*backend.Stream, error)
}

// HistoryRecorder persists terminal job outcomes for later inspection.
// cmd/serve.go's historyAdapter wraps internal/history.DB to satisfy
// it. A nil recorder disables the audit log entirely.
type HistoryRecorder interface {
	Append(r HistoryRecord) error
}

// HistoryRecord is the terminal-outcome shape the scheduler hands to a
// HistoryRecorder, kept independent of the history package's own
// storage types so dispatcher never imports it.
type HistoryRecord struct {
	UserHash   string
	Path       string
	Outcome    string
	Code       int
	Duration   time.Duration
	FinishedAt time.Time
}

// Scheduler owns the round-robin dispatch loop. One Scheduler per
// process; Run blocks until ctx is cancelled.
type Scheduler struct {
	registry *Registry
	backend  Backend
	logger   *log.Logger
	history  HistoryRecorder

	idleThreshold time.Duration
	gcInterval    time.Duration

	mu      sync.Mutex
	current *Job
}

// NewScheduler wires a Scheduler against registry and backend. Zero
// idleThreshold/gcInterval fall back to the package defaults. history
// may be nil to disable the audit log.
func NewScheduler(registry *Registry, be Backend, logger *log.Logger, history HistoryRecorder, idleThreshold, gcInterval time.Duration) *Scheduler {
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	if gcInterval <= 0 {
		gcInterval = DefaultGCInterval
	}
	return &Scheduler{
		registry:      registry,
		backend:       be,
		logger:        logger,
		history:       history,
		idleThreshold: idleThreshold,
		gcInterval:    gcInterval,
	}
}

// Run drains the registry in round-robin order until ctx is cancelled.
// When no user has a pending job it parks on the registry's wake
// channel or the GC ticker, whichever fires first.
//
// On shutdown (ctx cancelled) the job currently in flight, if any, is
// cancelled immediately via a concurrent watcher so a stalled backend
// call can't hold up the exit, and every job still queued is drained
// and ended with StatusCancelled rather than dispatched.
func (s *Scheduler) Run(ctx context.Context) error {
	gcTicker := time.NewTicker(s.gcInterval)
	defer gcTicker.Stop()

	go s.watchShutdown(ctx)

	for {
		if ctx.Err() != nil {
			s.drainPending()
			return nil
		}

		user, job, ok := s.registry.TakeNext()
		if !ok {
			select {
			case <-ctx.Done():
				s.drainPending()
				return nil
			case <-s.registry.Wake():
				continue
			case <-gcTicker.C:
				s.runGC()
				continue
			}
		}

		s.setCurrent(job)
		s.dispatch(user, job)
		s.setCurrent(nil)
	}
}

// watchShutdown cancels whatever job is in flight as soon as ctx fires,
// so a backend call blocked mid-stream aborts instead of running to
// completion before Run notices the shutdown.
func (s *Scheduler) watchShutdown(ctx context.Context) {
	<-ctx.Done()
	if job := s.currentJob(); job != nil {
		job.Cancel()
	}
}

func (s *Scheduler) setCurrent(job *Job) {
	s.mu.Lock()
	s.current = job
	s.mu.Unlock()
}

func (s *Scheduler) currentJob() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// drainPending empties every remaining user queue and ends each
// drained job with StatusCancelled, without ever calling the backend.
func (s *Scheduler) drainPending() {
	for _, d := range s.registry.DrainAll() {
		d.Job.Cancel()
		d.Job.Bridge().SendEnd(EndStatus{Kind: StatusCancelled})
		s.registry.RecordCancelledBeforeDispatch(d.User)
		s.recordHistory(d.Job, EndStatus{Kind: StatusCancelled})
		s.logger.Printf("[Scheduler] shutdown: cancelled queued request=%s user=%s", d.Job.RequestID, ShortHash(d.User))
	}
}

func (s *Scheduler) runGC() {
	removed := s.registry.GCIdle(time.Now(), s.idleThreshold)
	for _, user := range removed {
		s.logger.Printf("[Registry] gc: dropped idle queue for user=%s", ShortHash(user))
	}
}

// dispatch executes one job end-to-end: the early-cancellation check,
// the backend call, the streaming copy into the job's bridge, and the
// registry bookkeeping. It never panics and never returns an error —
// every failure mode is folded into an EndStatus on the bridge.
func (s *Scheduler) dispatch(user string, job *Job) {
	if !job.Bridge().ConsumerAlive() {
		job.Cancel()
		job.Bridge().SendEnd(EndStatus{Kind: StatusCancelled})
		s.registry.RecordCancelledBeforeDispatch(user)
		s.recordHistory(job, EndStatus{Kind: StatusCancelled})
		return
	}

	stream, err := s.backend.Execute(job.Context(), job.Path, job.Body)
	if err != nil {
		outcome := classifyDispatchError(job.Context(), err)
		s.logger.Printf("[Scheduler] dispatch: request=%s user=%s path=%s failed: %v", job.RequestID, ShortHash(user), job.Path, err)
		job.Bridge().SendEnd(outcome)
		job.Cancel()
		s.registry.OnJobCompleted(user, outcome)
		s.recordHistory(job, outcome)
		return
	}
	defer stream.Body.Close()

	outcome := s.pump(job, stream.Body)
	job.Bridge().SendEnd(outcome)
	job.Cancel()
	s.registry.OnJobCompleted(user, outcome)
	s.recordHistory(job, outcome)
}

// recordHistory appends the job's terminal outcome to the audit log,
// if one is configured. A failing write is logged and otherwise
// ignored — the audit log is strictly observational.
func (s *Scheduler) recordHistory(job *Job, outcome EndStatus) {
	if s.history == nil {
		return
	}
	record := HistoryRecord{
		UserHash:   ShortHash(job.User),
		Path:       job.Path,
		Outcome:    outcome.Kind.String(),
		Code:       outcome.Code,
		Duration:   time.Since(job.CreatedAt),
		FinishedAt: time.Now(),
	}
	if err := s.history.Append(record); err != nil {
		s.logger.Printf("[Dispatcher] history: failed to record outcome for user=%s: %v", ShortHash(job.User), err)
	}
}

// pump copies the backend response body into the job's bridge one
// chunk at a time, stopping on EOF, context cancellation, or the
// consumer detaching mid-stream.
func (s *Scheduler) pump(job *Job, body io.Reader) EndStatus {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if sendErr := job.Bridge().SendChunk(buf[:n]); sendErr != nil {
				return EndStatus{Kind: StatusCancelled}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return EndStatus{Kind: StatusOK}
			}
			return classifyDispatchError(job.Context(), readErr)
		}
		select {
		case <-job.Context().Done():
			return EndStatus{Kind: StatusCancelled}
		default:
		}
	}
}

// classifyDispatchError maps a backend error into the EndStatus kind
// the response layer and dashboard report.
func classifyDispatchError(ctx context.Context, err error) EndStatus {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return EndStatus{Kind: StatusTimeout}
		}
		return EndStatus{Kind: StatusCancelled}
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return EndStatus{Kind: StatusUpstreamError, Code: statusErr.Code, Body: statusErr.Body}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return EndStatus{Kind: StatusTimeout}
	}

	var connErr *backend.ConnError
	if errors.As(err, &connErr) {
		return EndStatus{Kind: StatusUpstreamError, Code: 0, Body: connErr.Error()}
	}

	return EndStatus{Kind: StatusUpstreamError, Code: 0, Body: err.Error()}
}
