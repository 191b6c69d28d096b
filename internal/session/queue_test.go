package session

import "testing"

func TestPendingQueue_FIFO(t *testing.T) {
	q := newPendingQueue(0)
	for _, id := range []string{"a", "b", "c"} {
		if r := q.push(id); r != pushed {
			t.Fatalf("push(%q) = %v, want pushed", id, r)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("pop() = %q, %v; want %q", got, ok, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop() on empty queue ok = true")
	}
}

func TestPendingQueue_Coalesces(t *testing.T) {
	q := newPendingQueue(0)
	q.push("a")
	q.push("b")

	if r := q.push("a"); r != coalesced {
		t.Errorf("push(a) again = %v, want coalesced", r)
	}
	if n := q.len(); n != 2 {
		t.Errorf("len() = %d, want 2", n)
	}

	// once popped, the id can be queued again
	q.pop()
	if r := q.push("a"); r != pushed {
		t.Errorf("push(a) after pop = %v, want pushed", r)
	}
}

func TestPendingQueue_Limit(t *testing.T) {
	q := newPendingQueue(2)
	q.push("a")
	q.push("b")

	if r := q.push("c"); r != full {
		t.Errorf("push over limit = %v, want full", r)
	}
	if r := q.push("a"); r != coalesced {
		t.Errorf("push of queued id at limit = %v, want coalesced", r)
	}
}

func TestPendingQueue_Clear(t *testing.T) {
	q := newPendingQueue(0)
	q.push("a")
	q.clear()

	if n := q.len(); n != 0 {
		t.Errorf("len() after clear = %d, want 0", n)
	}
	if r := q.push("a"); r != pushed {
		t.Errorf("push after clear = %v, want pushed", r)
	}
}

func TestCanSend(t *testing.T) {
	tr := newFakeTransport()
	if !CanSend(tr) {
		t.Error("CanSend(open) = false, want true")
	}

	for _, st := range []TransportState{TransportConnecting, TransportClosing, TransportClosed} {
		tr.mu.Lock()
		tr.state = st
		tr.mu.Unlock()
		if CanSend(tr) {
			t.Errorf("CanSend(%v) = true, want false", st)
		}
	}

	if CanSend(nil) {
		t.Error("CanSend(nil) = true, want false")
	}
}
