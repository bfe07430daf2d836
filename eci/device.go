// Package eci implements the Embedded Controller Interface: a driver that
// turns a master-driven SMBus-like serial bus into a tagged
// request/response plus unsolicited-event transport between this process
// (the AP, an I2C/SMBus slave) and a separate embedded controller (the EC,
// the bus master).
//
// Three executors interact around a single Device: the bus callback
// (OnBusEvent, called inline from the hardware interrupt path — it must
// never sleep and never block), caller goroutines blocked in Submit, and
// the EventDispatcher's worker goroutine. See statemachine.go,
// requestpath.go and dispatcher.go respectively.
package eci

import (
	"sync"
	"sync/atomic"
	"time"

	"nvec-go/internal/eventpool"
	"nvec-go/internal/pktqueue"
	"nvec-go/internal/tagpool"
	"nvec-go/internal/wire"
	"nvec-go/x/mathx"
	"nvec-go/x/timex"
)

// Status carries the per-byte flag word the Bus Port reports alongside
// each received byte (or read request).
type Status struct {
	IRQ   bool
	START bool
	STOP  bool
	RNW   bool // read-not-write: the master is reading from us
}

// BusPort is the abstract slave-mode serial bus controller. The core never
// touches registers directly; a real hardware driver adapts its interrupt
// source to OnBusEvent and implements this interface for the two
// bus-specific requests the state machine needs.
type BusPort interface {
	// ClearReceived acknowledges/clears the received-byte register after
	// the address byte, as some controllers require before the next byte
	// can arrive.
	ClearReceived()
	// BusyWaitMicros busy-waits for n microseconds. Used for the short
	// settling delay some controllers need before the first byte of a
	// block read is placed on the bus. Must be callable from the bus
	// callback, so it cannot sleep the scheduler.
	BusyWaitMicros(n uint32)
}

// AttentionLine is the out-of-band GPIO the AP asserts to tell the EC it
// has packets to deliver.
type AttentionLine interface {
	// Set(true) asserts (drives low); Set(false) deasserts (drives high).
	Set(asserted bool)
}

// Event is the decoded form of an EvMsg delivered to listeners.
type Event struct {
	Type    byte
	Status  byte
	Payload []byte
}

// Listener receives dispatched events. Listeners run on the dispatcher's
// worker goroutine and may block; a slow listener delays the other
// listeners and every event queued behind it, never the bus callback.
type Listener func(Event)

// Config tunes the request path and the slave-mode bring-up Lifecycle
// performs; it is normally populated from the "eci" key published by
// services/config.
type Config struct {
	Address    byte
	ClockHz    uint32
	DelayCount uint32
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig carries the values the reference hardware brings the bus
// up with.
func DefaultConfig() Config {
	return Config{
		Address:    0x8A >> 1,
		ClockHz:    80_000,
		DelayCount: 2,
		Timeout:    20 * time.Millisecond,
		MaxRetries: 10,
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseCmdWait
	phaseDiscriminate
	phaseBlockRead
	phaseBlockWrite
)

// Device is the core driver instance. Construct with New, bring up with
// Probe, and call OnBusEvent from the bus driver's interrupt handler.
type Device struct {
	bus  BusPort
	attn AttentionLine
	cfg  Config

	tags   *tagpool.Pool
	events *eventpool.Pool
	queues *pktqueue.Queues

	// smMu guards everything the state machine touches between bus
	// callbacks: the phase, the scratch RX buffer and cursor, and the TX
	// cursor/current TX record. Distinct from queues' own lock, which is
	// only held for pointer manipulation on the two lists.
	smMu    sync.Mutex
	ph      phase
	scratch [wire.MaxPayload + 4]byte
	rxPos   int

	txMsg *pktqueue.Request
	txPos int
	txLen int

	scratchNoop *pktqueue.Request

	// settleMicros is the busy-wait applied before the first byte of a
	// block read is placed on the bus, derived from Config.ClockHz and
	// Config.DelayCount (DelayCount bus-clock periods, rounded up to
	// whole microseconds).
	settleMicros uint32

	dispatcher *dispatcher

	suspendedMu sync.Mutex
	suspended   bool

	// framingErrors counts malformed packets dropped by dispatchReceived
	// (wire.ErrTruncated, wire.ErrReservedLengthClass). Classified as
	// errcode.BusError when surfaced; see FramingErrors.
	framingErrors atomic.Uint32
}

// New constructs a Device around its hardware collaborators. Call Probe
// before submitting requests.
func New(bus BusPort, attn AttentionLine, cfg Config) *Device {
	periodNs := timex.PeriodFromHz(cfg.ClockHz)
	settleNs := periodNs * uint64(cfg.DelayCount)

	d := &Device{
		bus:          bus,
		attn:         attn,
		cfg:          cfg,
		tags:         tagpool.New(),
		events:       eventpool.New(),
		queues:       pktqueue.New(),
		ph:           phaseIdle,
		settleMicros: uint32(mathx.CeilDiv(settleNs, 1000)),
	}
	d.dispatcher = newDispatcher(d.events)
	return d
}

func (d *Device) isSuspended() bool {
	d.suspendedMu.Lock()
	defer d.suspendedMu.Unlock()
	return d.suspended
}

func (d *Device) setSuspended(v bool) {
	d.suspendedMu.Lock()
	d.suspended = v
	d.suspendedMu.Unlock()
}

// FramingErrors returns the count of malformed packets dropped since
// construction, classified as errcode.BusError. A nonzero, growing count
// points at a wiring or timing problem on the physical bus.
func (d *Device) FramingErrors() uint32 { return d.framingErrors.Load() }

// AddEventListener registers l to receive every dispatched event whose
// type (bits 0-3 of the event command byte) equals evType, or every event
// regardless of type when evType is negative. Returns a function that
// removes the registration.
func (d *Device) AddEventListener(evType int, l Listener) (remove func()) {
	return d.dispatcher.register(evType, l)
}
