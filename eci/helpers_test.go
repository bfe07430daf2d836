package eci_test

import (
	"context"
	"testing"
	"time"

	"nvec-go/eci"
	"nvec-go/internal/simbus"
	"nvec-go/internal/wire"
)

// probeWithAutoResponder runs Probe to completion (answering the firmware
// handshake and the event-reporting toggle it sends) and leaves a background
// goroutine running that acknowledges every further request with a
// zero-status response carrying four zero payload bytes. It returns a cleanup func that stops
// the responder and cancels the dispatcher's context.
func probeWithAutoResponder(t *testing.T, dev *eci.Device, master *simbus.Master, attn *simbus.Attn) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !attn.Asserted() {
				time.Sleep(time.Millisecond)
				continue
			}
			tx := master.PollBlockRead(dev, wire.MaxPayload+4)
			if len(tx) == 0 {
				continue
			}
			tag, cmd, subcmd, _, err := wire.DecodeRequest(tx)
			if err != nil {
				continue
			}
			master.DeliverInbound(dev, wire.EncodeResponse(tag, cmd, subcmd, 0, []byte{0, 0, 0, 0}))
		}
	}()

	probeErr := make(chan error, 1)
	go func() { probeErr <- dev.Probe(ctx) }()

	select {
	case err := <-probeErr:
		if err != nil {
			close(stop)
			cancel()
			t.Fatalf("Probe: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(stop)
		cancel()
		t.Fatal("Probe never completed")
	}

	return func() {
		close(stop)
		cancel()
	}
}
