// cmd/eci-demo/main.go
//
// A host-runnable demonstration of the eci package: internal/simbus plays
// the EC (bus master) side of the wire, answering every request and
// pushing one unsolicited event, while a Device plays the AP (bus slave)
// side via the real state machine, request path and dispatcher.
//
// There is no hardware Bus Port here; this demo exists to exercise the
// same production code the tests do, in a form a person can read top to
// bottom.
package main

import (
	"context"
	"time"

	"nvec-go/eci"
	"nvec-go/internal/simbus"
	"nvec-go/internal/wire"
	"nvec-go/x/fmtx"
)

func logln(a ...any) { println(fmtx.Sprint(a...)) }
func logf(format string, a ...any) { println(fmtx.Sprintf(format, a...)) }

func main() {
	port := simbus.NewPort()
	attn := simbus.NewAttn()
	cfg := eci.DefaultConfig()
	master := &simbus.Master{Addr: cfg.Address}

	dev := eci.New(port, attn, cfg)

	remove := dev.AddEventListener(-1, func(ev eci.Event) {
		logf("event: type=%d status=%d payload=%v", int(ev.Type), int(ev.Status), ev.Payload)
	})
	defer remove()

	stop := make(chan struct{})
	go runEC(dev, master, attn, stop)
	defer close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	logln("probing device...")
	if err := dev.Probe(ctx); err != nil {
		logf("probe failed: %s", err.Error())
		return
	}
	logln("probe ok, event reporting enabled")

	var major, minor byte
	var fw [4]byte
	if n, err := dev.Submit(0x04, 0x10, nil, fw[:]); err != nil {
		logf("firmware query failed: %s", err.Error())
	} else if n >= 2 {
		major, minor = fw[0], fw[1]
		logf("firmware version: %d.%d", int(major), int(minor))
	}

	time.Sleep(50 * time.Millisecond) // let the EC's spontaneous event land
	logln("done")
}

// runEC plays the EC side: it answers every outbound request generically,
// and the first time it finds the attention line idle it waits 30ms and
// injects one unsolicited fixed-length event (type 0x03). That can land
// before or after the handshake's response.
func runEC(dev *eci.Device, master *simbus.Master, attn *simbus.Attn, stop <-chan struct{}) {
	sentEvent := false
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !attn.Asserted() {
			if !sentEvent {
				time.Sleep(30 * time.Millisecond)
				raw := wire.EncodeEvent(wire.EventFixed2, 0x03, false, 0, []byte{0x41})
				master.DeliverInbound(dev, raw)
				sentEvent = true
			}
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
		master.DeliverInbound(dev, wire.EncodeResponse(tag, cmd, subcmd, 0, []byte{1, 0, 0, 0}))
	}
}
