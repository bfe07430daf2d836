package eci

import (
	"context"
	"sync/atomic"

	"nvec-go/errcode"
)

// globalDevice backs PowerOff, the one entry point that must be callable
// from a shutdown context with no parameters. It is set by Probe and
// cleared by Shutdown.
var globalDevice atomic.Pointer[Device]

// Probe brings the device up: idles the attention line, starts the event
// dispatcher, registers the process-wide handle, then handshakes with the
// EC by requesting its firmware version. A failed handshake is the one
// fatal error this package raises; everything else recovers locally.
func (d *Device) Probe(ctx context.Context) error {
	d.attn.Set(false)
	d.dispatcher.start(ctx)
	globalDevice.Store(d)

	var fw [4]byte
	if _, err := d.Submit(cmdControl, subcmdControlGetFirmwareVersion, nil, fw[:]); err != nil {
		globalDevice.CompareAndSwap(d, nil)
		return &errcode.E{C: errcode.Error, Op: "eci.Probe", Msg: "no response from EC", Err: err}
	}

	if err := d.setEventReporting(true); err != nil {
		return err
	}
	return nil
}

// Suspend disables event reporting, tells the EC the AP is suspending, and
// refuses further Submit calls until Resume.
func (d *Device) Suspend() error {
	if err := d.setEventReporting(false); err != nil {
		return err
	}
	if _, err := d.Submit(cmdSleep, subcmdSleepAPSuspend, nil, nil); err != nil {
		return err
	}
	d.setSuspended(true)
	return nil
}

// Resume re-enables Submit and event reporting after a Suspend.
func (d *Device) Resume() error {
	d.setSuspended(false)
	return d.setEventReporting(true)
}

// Shutdown disables event reporting and deregisters the process-wide
// handle. Submit calls made after Shutdown fail with Suspended.
func (d *Device) Shutdown() error {
	err := d.setEventReporting(false)
	globalDevice.CompareAndSwap(d, nil)
	d.setSuspended(true)
	return err
}

// PowerOff disables event reporting and fires SLEEP.AP_POWER_DOWN without
// waiting for a response, matching the reference driver's poweroff hook
// (it runs from a shutdown path that cannot afford to block).
func (d *Device) PowerOff() error {
	if err := d.setEventReporting(false); err != nil {
		logln("eci: power-off event-report disable failed, proceeding anyway")
	}
	go func() {
		if _, err := d.Submit(cmdSleep, subcmdSleepAPPowerDown, nil, nil); err != nil {
			logln("eci: power-down request did not complete")
		}
	}()
	return nil
}

// PowerOff powers off whichever Device last called Probe, for callers that
// have no reference to one (a process-exit hook, for instance).
func PowerOff() error {
	d := globalDevice.Load()
	if d == nil {
		return &errcode.E{C: errcode.Error, Op: "eci.PowerOff", Msg: "no device registered"}
	}
	return d.PowerOff()
}

func (d *Device) setEventReporting(enable bool) error {
	val := eventReportDisable
	if enable {
		val = eventReportEnable
	}
	_, err := d.Submit(cmdSleep, subcmdSleepGlobalConfigEventReport, []byte{val}, nil)
	return err
}
