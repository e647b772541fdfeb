package dispatcher

import (
	"testing"
	"time"
)

func TestBridgeChunkThenEnd(t *testing.T) {
	b := newBridge(4)

	if err := b.SendChunk([]byte("hello")); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	b.SendEnd(EndStatus{Kind: StatusOK})

	chunk, end, ok := b.Next()
	if !ok || end != nil || string(chunk) != "hello" {
		t.Fatalf("expected chunk %q, got chunk=%q end=%v ok=%v", "hello", chunk, end, ok)
	}

	_, end, ok = b.Next()
	if !ok || end == nil || end.Kind != StatusOK {
		t.Fatalf("expected terminal StatusOK, got end=%v ok=%v", end, ok)
	}
}

func TestBridgeSendEndIsIdempotent(t *testing.T) {
	b := newBridge(4)
	b.SendEnd(EndStatus{Kind: StatusOK})
	b.SendEnd(EndStatus{Kind: StatusUpstreamError}) // must be a no-op

	_, end, ok := b.Next()
	if !ok || end == nil || end.Kind != StatusOK {
		t.Fatalf("expected the first End to win, got end=%v ok=%v", end, ok)
	}
}

func TestBridgeDetachUnblocksSendChunk(t *testing.T) {
	b := newBridge(0) // unbuffered: SendChunk always blocks until drained or detached

	done := make(chan error, 1)
	go func() {
		done <- b.SendChunk([]byte("x"))
	}()

	b.Detach()

	select {
	case err := <-done:
		if !IsConsumerGone(err) {
			t.Fatalf("expected IsConsumerGone error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendChunk did not unblock after Detach")
	}
}

func TestBridgeConsumerAliveReflectsDetach(t *testing.T) {
	b := newBridge(1)
	if !b.ConsumerAlive() {
		t.Fatal("expected ConsumerAlive to be true before Detach")
	}
	b.Detach()
	if b.ConsumerAlive() {
		t.Fatal("expected ConsumerAlive to be false after Detach")
	}
	b.Detach() // idempotent, must not panic
}
