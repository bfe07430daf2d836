package eventpool

import "testing"

func TestAllocExhaustionAndFree(t *testing.T) {
	p := New()
	var got []*Event
	for i := 0; i < Slots; i++ {
		ev := p.TryAlloc()
		if ev == nil {
			t.Fatalf("TryAlloc returned nil before exhaustion at i=%d", i)
		}
		got = append(got, ev)
	}
	if p.TryAlloc() != nil {
		t.Fatal("TryAlloc succeeded past pool capacity")
	}

	p.Free(got[0])
	ev := p.TryAlloc()
	if ev == nil {
		t.Fatal("TryAlloc failed after a Free")
	}
	if ev != got[0] {
		t.Fatal("TryAlloc did not reuse the freed slot")
	}
}

func TestAllocResetsFields(t *testing.T) {
	p := New()
	ev := p.TryAlloc()
	ev.Type, ev.Status, ev.PayloadLen = 5, 1, 3
	p.Free(ev)

	reused := p.TryAlloc()
	if reused.Type != 0 || reused.Status != 0 || reused.PayloadLen != 0 {
		t.Fatalf("reused slot not reset: %+v", reused)
	}
}
