package eci

import (
	"time"

	"nvec-go/errcode"
	"nvec-go/internal/pktqueue"
	"nvec-go/internal/wire"
	"nvec-go/x/fmtx"
)

// retryPulse is how long the attention line is deasserted mid-retry before
// being reasserted, to shake out an EC that missed the original assertion.
const retryPulse = 10 * time.Millisecond

// Submit is the synchronous caller API (RequestPath/"cmd_xfer"): build and
// enqueue a request, assert the attention line, and block until the EC's
// response arrives or the retry budget is exhausted. On success it returns
// the number of bytes copied into rxBuf (truncated, not failed, if the
// response was larger).
func (d *Device) Submit(cmd, subcmd byte, txPayload, rxBuf []byte) (int, error) {
	if d.isSuspended() {
		return 0, &errcode.E{C: errcode.Suspended, Op: "eci.Submit"}
	}
	if len(txPayload) > wire.MaxPayload {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "eci.Submit", Msg: "payload exceeds max"}
	}

	tag := d.tags.Acquire(cmd)
	txRaw := wire.EncodeRequest(tag, cmd, subcmd, txPayload)
	req := pktqueue.NewRequest(tag, cmd, txRaw)

	// Assert the attention line while the queue lock is still held, so a
	// bus callback can never serve the new packet and drop the line before
	// the assert lands.
	d.queues.Enqueue(req, func(int) { d.attn.Set(true) })

	retries := d.cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Millisecond
	}

	completed := false
	for i := 0; i < retries; i++ {
		timer := time.NewTimer(timeout)
		select {
		case <-req.Done:
			timer.Stop()
			completed = true
		case <-timer.C:
		}
		if completed {
			break
		}
		if i < retries-1 {
			d.attn.Set(false)
			time.Sleep(retryPulse)
			d.attn.Set(true)
		}
	}

	if !completed {
		d.queues.RemoveWherever(req, func(remaining int, _ bool) {
			d.attn.Set(remaining > 0)
		})
		d.tags.Release(cmd, tag)
		return 0, &errcode.E{C: errcode.Timeout, Op: "eci.Submit"}
	}

	if req.RxStatus != 0 {
		return 0, &errcode.E{C: errcode.RemoteError, Op: "eci.Submit", Msg: fmtx.Sprintf("status=%d", int(req.RxStatus))}
	}

	n := copy(rxBuf, req.RxPayload)
	if n < len(req.RxPayload) {
		logln("eci: response truncated to caller buffer")
	}
	return n, nil
}
