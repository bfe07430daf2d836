package eci

import (
	"nvec-go/errcode"
	"nvec-go/internal/pktqueue"
	"nvec-go/internal/wire"
)

// OnBusEvent is the bus callback: the entry point a real Bus Port calls
// from its own interrupt handler, once per status/byte event. It never
// sleeps and never blocks — every suspension point in this package
// (TagPool.Acquire, a completion wait, a listener) lives on the caller or
// dispatcher side, never here.
//
// It returns the byte to place on the bus when the master is reading
// (haveTx true), or haveTx false for a pure receive/no-op event.
func (d *Device) OnBusEvent(status Status, received byte) (tx byte, haveTx bool) {
	d.smMu.Lock()
	defer d.smMu.Unlock()

	switch d.ph {
	case phaseIdle:
		return d.stepIdle(status, received)
	case phaseCmdWait:
		return d.stepCmdWait(status, received)
	case phaseDiscriminate:
		return d.stepDiscriminate(status, received)
	case phaseBlockRead:
		return d.stepBlockRead(status)
	case phaseBlockWrite:
		return d.stepBlockWrite(status, received)
	default:
		d.ph = phaseIdle
		return 0, false
	}
}

func (d *Device) stepIdle(status Status, received byte) (byte, bool) {
	if status.IRQ && status.START {
		addr := received >> 1
		if addr != d.cfg.Address {
			logf("eci: address mismatch %d", int64(addr))
			return 0, false
		}
		d.bus.ClearReceived()
		d.ph = phaseCmdWait
		return 0, false
	}
	logln("eci: unexpected status in idle")
	return 0, false
}

func (d *Device) stepCmdWait(status Status, received byte) (byte, bool) {
	if status.IRQ && !status.START && !status.STOP && !status.RNW {
		d.scratch[0] = received
		d.rxPos = 1
		d.ph = phaseDiscriminate
		return 0, false
	}
	logln("eci: unexpected status in cmd_wait")
	d.ph = phaseIdle
	return 0, false
}

func (d *Device) stepDiscriminate(status Status, received byte) (byte, bool) {
	switch {
	case status.IRQ && status.RNW && status.START:
		if d.scratch[0] != wire.BlockReadMarker {
			logf("eci: block-read marker mismatch %d", int64(d.scratch[0]))
			d.ph = phaseIdle
			return 0, false
		}
		return d.beginBlockRead()

	case status.IRQ && !status.START && !status.RNW && !status.STOP:
		d.scratch[1] = received
		d.rxPos = 2
		d.ph = phaseBlockWrite
		return 0, false

	default:
		logln("eci: unexpected status in discriminate")
		d.ph = phaseIdle
		return 0, false
	}
}

func (d *Device) beginBlockRead() (byte, bool) {
	if d.txMsg == nil {
		if head := d.queues.PeekToSend(); head != nil {
			d.txMsg = head
		} else {
			d.txMsg = d.buildScratchNoop()
		}
		d.txPos = 0
	} else {
		d.txPos = 0 // resume an aborted read from the beginning
	}
	d.txLen = len(d.txMsg.TxRaw)

	d.bus.BusyWaitMicros(d.settleMicros)
	d.attn.Set(false) // the EC is being served

	tx := d.txMsg.TxRaw[d.txPos]
	d.txPos++
	d.ph = phaseBlockRead
	return tx, true
}

func (d *Device) stepBlockRead(status Status) (byte, bool) {
	if status.IRQ && status.RNW && status.STOP {
		d.ph = phaseIdle
		if d.txPos >= d.txLen {
			if d.txMsg != d.scratchNoop {
				d.queues.MoveToAwaiting(d.txMsg, func(remaining int) {
					d.attn.Set(remaining > 0)
				})
			}
			d.txMsg = nil
			return 0, false
		}
		// Premature STOP: rewind and let the EC retry the same packet.
		d.txPos = 0
		d.attn.Set(true)
		return 0, false
	}
	if status.IRQ && status.RNW {
		if d.txPos < d.txLen {
			tx := d.txMsg.TxRaw[d.txPos]
			d.txPos++
			return tx, true
		}
		// Keep the bus fed so the master can finish its transaction.
		logln("eci: block-read underflow")
		d.ph = phaseIdle
		return 0xFF, true
	}
	logln("eci: unexpected status in block_read")
	d.ph = phaseIdle
	return 0, false
}

func (d *Device) stepBlockWrite(status Status, received byte) (byte, bool) {
	if status.IRQ && !status.STOP {
		limit := len(d.scratch)
		if d.rxPos > 2 {
			declared := int(d.scratch[1]) + 2
			if declared < limit {
				limit = declared
			}
		}
		if d.rxPos >= limit {
			logf("eci: block-write overflow at %d", int64(d.rxPos))
		} else {
			d.scratch[d.rxPos] = received
			d.rxPos++
		}
		return 0, false
	}
	if status.IRQ && status.STOP {
		d.dispatchReceived(append([]byte(nil), d.scratch[:d.rxPos]...))
		d.ph = phaseIdle
		return 0, false
	}
	logln("eci: unexpected status in block_write")
	d.ph = phaseIdle
	return 0, false
}

func (d *Device) buildScratchNoop() *pktqueue.Request {
	if d.scratchNoop == nil {
		d.scratchNoop = pktqueue.NewRequest(0, cmdControl, nil)
	}
	d.scratchNoop.TxRaw = wire.EncodeRequest(0, cmdControl, subcmdControlNoOperation, nil)
	return d.scratchNoop
}

// dispatchReceived classifies a fully-received packet as an event or a
// response and routes it accordingly. Called only from stepBlockWrite,
// still inside smMu — it must not block.
func (d *Device) dispatchReceived(raw []byte) {
	if len(raw) == 0 {
		return
	}
	if wire.IsEvent(raw[0]) {
		d.dispatchEvent(raw)
		return
	}
	d.dispatchResponse(raw)
}

func (d *Device) dispatchEvent(raw []byte) {
	evType, status, payload, err := wire.DecodeEvent(raw)
	if err != nil {
		d.framingErrors.Add(1)
		logf("eci: dropping malformed event (%s): %s", string(errcode.BusError), err.Error())
		return
	}
	ev := d.events.TryAlloc()
	if ev == nil {
		logln("eci: event pool exhausted, dropping event")
		return
	}
	ev.Type = evType
	ev.Status = status
	ev.PayloadLen = copy(ev.Payload[:], payload)
	d.dispatcher.enqueue(ev)
}

func (d *Device) dispatchResponse(raw []byte) {
	tag, cmd, subcmd, status, payload, err := wire.DecodeResponse(raw)
	if err != nil {
		d.framingErrors.Add(1)
		logf("eci: dropping malformed response (%s): %s", string(errcode.BusError), err.Error())
		return
	}
	req := d.queues.MatchAndRemove(tag, cmd)
	if req == nil {
		logln("eci: unsolicited response, dropping")
		return
	}
	req.RxTag, req.RxCmd, req.RxSubcmd, req.RxStatus = tag, cmd, subcmd, status
	req.RxPayload = payload
	d.tags.Release(cmd, tag)
	close(req.Done)
}
