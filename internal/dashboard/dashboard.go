/*
Copyright © 2025 ALESSIO TONIOLO

dashboard.go renders a periodic textual snapshot of dispatcher state.
The corpus carries no TUI library, so this stays on text/tabwriter and
"log" rather than fabricating a curses-style dependency; grounded on
the teacher's handleStatusEndpoint in pkg/proxy/proxy.go for which
fields matter, adapted from JSON to a fixed-width table.
*/
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/tabwriter"
	"time"

	"ollamamq/internal/dispatcher"
	"ollamamq/internal/history"
)

// HistoryReader is the read side of the audit log a Dashboard uses to
// show each active user's recent outcomes alongside their live queue
// state. *history.DB satisfies it; a nil HistoryReader disables the
// "recent" rows entirely (history is optional and can be turned off).
type HistoryReader interface {
	RecentByUser(userHash string, n int) ([]history.Record, error)
}

// recentPerUser bounds how many audit-log rows the dashboard fetches
// and prints per active user on each render.
const recentPerUser = 3

// Dashboard periodically logs a snapshot of dispatcher state.
type Dashboard struct {
	dispatcher *dispatcher.Dispatcher
	history    HistoryReader
	logger     *log.Logger
	interval   time.Duration
}

// New constructs a Dashboard. interval <= 0 falls back to 2 seconds.
// history may be nil to disable the "recent activity" panel.
func New(d *dispatcher.Dispatcher, history HistoryReader, logger *log.Logger, interval time.Duration) *Dashboard {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Dashboard{dispatcher: d, history: history, logger: logger, interval: interval}
}

// Run ticks until ctx is cancelled, rendering one snapshot per tick.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	snap := d.dispatcher.Stats()

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "uptime\t%s\ttotal\t%d\tcompleted\t%d\tcancelled\t%d\tfailed\t%d\n",
		snap.Global.Uptime.Round(time.Second),
		snap.Global.TotalRequests, snap.Global.TotalCompleted,
		snap.Global.TotalCancelled, snap.Global.TotalFailed)

	if snap.InFlight != nil {
		fmt.Fprintf(tw, "in-flight\tuser=%s\tseq=%d\n", shortUser(snap.InFlight.User), snap.InFlight.Seq)
	} else {
		fmt.Fprintf(tw, "in-flight\tnone\n")
	}

	fmt.Fprintf(tw, "user\tpending\tcompleted\tcancelled\tfailed\texecuting\n")
	for _, u := range snap.Users {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%v\n",
			shortUser(u.User), u.PendingDepth, u.Counters.Completed,
			u.Counters.Cancelled, u.Counters.Failed, u.Executing)
		d.renderRecent(tw, u.User)
	}

	tw.Flush()
	d.logger.Print("\n" + buf.String())
}

// renderRecent appends up to recentPerUser audit-log rows for user, if
// a HistoryReader is configured. A lookup failure is logged once and
// otherwise ignored — the panel is purely observational.
func (d *Dashboard) renderRecent(tw *tabwriter.Writer, user string) {
	if d.history == nil {
		return
	}
	records, err := d.history.RecentByUser(dispatcher.ShortHash(user), recentPerUser)
	if err != nil {
		d.logger.Printf("[Dashboard] history lookup failed for user=%s: %v", shortUser(user), err)
		return
	}
	for _, r := range records {
		fmt.Fprintf(tw, "  recent\t%s\t%s\t%dms\n", r.Path, r.Outcome, r.Duration.Milliseconds())
	}
}

func shortUser(user string) string {
	if len(user) <= 8 {
		return user
	}
	return user[:8] + "…"
}
