package dispatcher

import "time"

// GlobalSnapshot is the process-wide half of a stats snapshot, taken
// as a set of independent atomic loads (spec.md allows this; the
// figures are for observability, not coordination).
type GlobalSnapshot struct {
	TotalRequests  int64
	TotalCompleted int64
	TotalCancelled int64
	TotalFailed    int64
	Uptime         time.Duration
}

// Snapshot is the full point-in-time view consumed by the console
// dashboard. It is not exposed over HTTP.
type Snapshot struct {
	Global    GlobalSnapshot
	Users     []UserSnapshot
	InFlight  *InFlight
	TakenAt   time.Time
}

// Stats assembles a Snapshot from the registry's global counters and
// per-user view.
func (r *Registry) Stats() Snapshot {
	users, inFlight := r.Snapshot()
	return Snapshot{
		Global: GlobalSnapshot{
			TotalRequests:  r.global.TotalRequests.Load(),
			TotalCompleted: r.global.TotalCompleted.Load(),
			TotalCancelled: r.global.TotalCancelled.Load(),
			TotalFailed:    r.global.TotalFailed.Load(),
			Uptime:         time.Since(r.global.StartTime),
		},
		Users:    users,
		InFlight: inFlight,
		TakenAt:  time.Now(),
	}
}
