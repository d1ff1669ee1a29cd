package usecase

import (
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	mu    sync.Mutex
	calls []struct {
		userName, combined, node string
	}
	done chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{done: make(chan struct{}, 16)}
}

func (r *flushRecorder) flush(userName, combined, node string) {
	r.mu.Lock()
	r.calls = append(r.calls, struct{ userName, combined, node string }{userName, combined, node})
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *flushRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a flush")
	}
}

func (r *flushRecorder) snapshot() []struct{ userName, combined, node string } {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct{ userName, combined, node string }, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestMessageBuffer_CombinesRapidMessages(t *testing.T) {
	rec := newFlushRecorder()
	b := NewMessageBuffer(50*time.Millisecond, time.Second, rec.flush)

	if !b.Add("Ivan", "сколько", "users-1-2") {
		t.Error("Add must report buffered")
	}
	if !b.Add("Ivan", "стоит аккаунт?", "users-1-2") {
		t.Error("Add must report buffered")
	}
	if b.Pending("Ivan") != 2 {
		t.Errorf("pending = %d, want 2", b.Pending("Ivan"))
	}

	rec.wait(t)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one flush, got %d", len(calls))
	}
	if calls[0].combined != "сколько стоит аккаунт?" {
		t.Errorf("combined = %q", calls[0].combined)
	}
	if calls[0].node != "users-1-2" {
		t.Errorf("node = %q", calls[0].node)
	}
	if b.Pending("Ivan") != 0 {
		t.Error("buffer must be empty after the flush")
	}
}

func TestMessageBuffer_PerUserIsolation(t *testing.T) {
	rec := newFlushRecorder()
	b := NewMessageBuffer(50*time.Millisecond, time.Second, rec.flush)

	b.Add("Ivan", "вопрос от ивана", "users-1-2")
	b.Add("Petr", "вопрос от петра", "users-1-3")

	rec.wait(t)
	rec.wait(t)

	calls := rec.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected two flushes, got %d", len(calls))
	}
	seen := map[string]string{}
	for _, c := range calls {
		seen[c.userName] = c.combined
	}
	if seen["Ivan"] != "вопрос от ивана" || seen["Petr"] != "вопрос от петра" {
		t.Errorf("per-user buffers mixed: %v", seen)
	}
}

func TestMessageBuffer_HardCapForcesFlush(t *testing.T) {
	rec := newFlushRecorder()
	b := NewMessageBuffer(60*time.Millisecond, 150*time.Millisecond, rec.flush)

	// Keep re-arming the debounce faster than it can fire. Without the hard
	// cap this would postpone the flush indefinitely.
	deadline := time.Now().Add(time.Second)
	for i := 0; ; i++ {
		b.Add("Ivan", "ещё", "users-1-2")
		if len(rec.snapshot()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hard cap never forced a flush")
		}
		time.Sleep(30 * time.Millisecond)
	}

	calls := rec.snapshot()
	if calls[0].userName != "Ivan" {
		t.Errorf("unexpected flush %+v", calls[0])
	}
}

func TestMessageBuffer_DisabledFlushesImmediately(t *testing.T) {
	rec := newFlushRecorder()
	b := NewMessageBuffer(0, time.Second, rec.flush)

	if b.Add("Ivan", "  прямой вопрос  ", "users-1-2") {
		t.Error("Add must report immediate processing when buffering is off")
	}

	rec.wait(t)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one flush, got %d", len(calls))
	}
	if calls[0].combined != "прямой вопрос" {
		t.Errorf("combined = %q, want trimmed text", calls[0].combined)
	}
}

func TestMessageBuffer_SlowFlushDoesNotBlockAdd(t *testing.T) {
	rec := newFlushRecorder()
	slow := func(userName, combined, node string) {
		time.Sleep(300 * time.Millisecond)
		rec.flush(userName, combined, node)
	}
	b := NewMessageBuffer(200*time.Millisecond, 60*time.Millisecond, slow)

	b.Add("Ivan", "сколько", "users-1-2")
	time.Sleep(70 * time.Millisecond)

	// The second message lands past the hard cap, so Add itself triggers
	// the flush. A flush that stalls on the oracle must not stall Add.
	start := time.Now()
	b.Add("Ivan", "стоит аккаунт?", "users-1-2")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("forced flush blocked Add for %v", elapsed)
	}

	rec.wait(t)
	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].combined != "сколько стоит аккаунт?" {
		t.Errorf("unexpected flushes %+v", calls)
	}
}
