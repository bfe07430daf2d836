package pktqueue

import "testing"

func TestEnqueueMoveMatch(t *testing.T) {
	q := New()
	r := NewRequest(2, 0x04, []byte{0x02, 0x04 | 0x20, 0x10})
	if depth := q.Enqueue(r, nil); depth != 1 {
		t.Fatalf("depth after enqueue = %d, want 1", depth)
	}
	if r.Location() != ToSend {
		t.Fatalf("location = %v, want ToSend", r.Location())
	}

	if head := q.PeekToSend(); head != r {
		t.Fatal("PeekToSend did not return the enqueued request")
	}

	remaining := q.MoveToAwaiting(r, nil)
	if remaining != 0 {
		t.Fatalf("remaining to-send depth = %d, want 0", remaining)
	}
	if r.Location() != AwaitingResponse {
		t.Fatalf("location = %v, want AwaitingResponse", r.Location())
	}

	got := q.MatchAndRemove(2, 0x04)
	if got != r {
		t.Fatal("MatchAndRemove did not find the enqueued request")
	}
	if r.Location() != Nowhere {
		t.Fatalf("location after match = %v, want Nowhere", r.Location())
	}
}

func TestMatchAndRemoveUnsolicited(t *testing.T) {
	q := New()
	if got := q.MatchAndRemove(1, 0x09); got != nil {
		t.Fatalf("MatchAndRemove on empty awaiting = %v, want nil", got)
	}
}

func TestRemoveWhereverFromToSend(t *testing.T) {
	q := New()
	r := NewRequest(0, 0x04, nil)
	q.Enqueue(r, nil)
	depth, wasLinked := q.RemoveWherever(r, nil)
	if !wasLinked || depth != 0 {
		t.Fatalf("depth=%d wasLinked=%v, want 0,true", depth, wasLinked)
	}
	if r.Location() != Nowhere {
		t.Fatal("request still linked after RemoveWherever")
	}
}

func TestRemoveWhereverFromAwaiting(t *testing.T) {
	q := New()
	r := NewRequest(0, 0x04, nil)
	q.Enqueue(r, nil)
	q.MoveToAwaiting(r, nil)
	depth, wasLinked := q.RemoveWherever(r, nil)
	if !wasLinked || depth != 0 {
		t.Fatalf("depth=%d wasLinked=%v, want 0,true", depth, wasLinked)
	}
}

func TestLockedCallbacksSeeTheNewDepth(t *testing.T) {
	q := New()
	r := NewRequest(0, 0x04, nil)

	var enqDepth int
	q.Enqueue(r, func(depth int) { enqDepth = depth })
	if enqDepth != 1 {
		t.Fatalf("Enqueue callback saw depth %d, want 1", enqDepth)
	}

	var remDepth int
	var remLinked bool
	q.RemoveWherever(r, func(depth int, wasLinked bool) {
		remDepth, remLinked = depth, wasLinked
	})
	if remDepth != 0 || !remLinked {
		t.Fatalf("RemoveWherever callback saw depth=%d wasLinked=%v, want 0,true", remDepth, remLinked)
	}
}

func TestScratchRequestNeverLinked(t *testing.T) {
	scratch := NewRequest(0, 0, nil)
	if scratch.Location() != Nowhere {
		t.Fatal("freshly constructed request should report Nowhere")
	}
	// A scratch packet that was never enqueued must be safely ignorable by
	// RemoveWherever: no panic, nothing removed.
	q := New()
	depth, wasLinked := q.RemoveWherever(scratch, nil)
	if wasLinked || depth != 0 {
		t.Fatalf("depth=%d wasLinked=%v, want 0,false", depth, wasLinked)
	}
}
