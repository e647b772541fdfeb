package dispatcher

import (
	"context"
	"testing"
	"time"
)

func TestRegistryTakeNextAdvancesCursorRegardless(t *testing.T) {
	r := NewRegistry()
	r.Enqueue(context.Background(), "alice", "/x", nil)
	r.Enqueue(context.Background(), "alice", "/x", nil)
	r.Enqueue(context.Background(), "bob", "/x", nil)

	user, job, ok := r.TakeNext()
	if !ok || user != "alice" {
		t.Fatalf("expected alice first, got user=%q ok=%v", user, ok)
	}
	r.OnJobCompleted(user, EndStatus{Kind: StatusOK})

	// Cursor must now point at bob even though alice still has a
	// pending job — rotation always advances past the user just served.
	user, job, ok = r.TakeNext()
	if !ok || user != "bob" {
		t.Fatalf("expected bob to be served next, got user=%q ok=%v", user, ok)
	}
	r.OnJobCompleted(user, EndStatus{Kind: StatusOK})
	_ = job
}

func TestRegistryTakeNextEmpty(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.TakeNext()
	if ok {
		t.Fatal("expected TakeNext to report false on an empty registry")
	}
}

func TestRegistryGCIdleRespectsThreshold(t *testing.T) {
	r := NewRegistry()
	r.Enqueue(context.Background(), "alice", "/x", nil)
	user, _, ok := r.TakeNext()
	if !ok {
		t.Fatal("expected a job")
	}
	r.OnJobCompleted(user, EndStatus{Kind: StatusOK})

	removed := r.GCIdle(time.Now(), time.Hour)
	if len(removed) != 0 {
		t.Fatalf("expected nothing removed before the threshold elapses, got %v", removed)
	}

	removed = r.GCIdle(time.Now().Add(time.Hour), time.Hour)
	if len(removed) != 1 || removed[0] != "alice" {
		t.Fatalf("expected alice to be garbage-collected, got %v", removed)
	}

	snap, _ := r.Snapshot()
	if len(snap) != 0 {
		t.Fatalf("expected an empty snapshot after GC, got %v", snap)
	}
}
