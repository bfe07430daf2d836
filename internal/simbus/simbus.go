// Package simbus is a software Bus Port and attention-line pair plus a
// minimal SMBus-master simulator. It drives eci.Device.OnBusEvent the way
// a real EC would, byte by byte, including the boundary and error
// scenarios real hardware is hard to coax into — a premature STOP
// mid-block-read, an oversized event, and so on. It is not a hardware
// driver; it exists purely to make the core host-testable.
package simbus

import (
	"sync"

	"nvec-go/eci"
	"nvec-go/internal/wire"
)

// Port is a no-op eci.BusPort: the simulated hardware has no registers to
// clear and no settling delay worth modelling.
type Port struct {
	mu            sync.Mutex
	clears        int
	busyWaitCalls int
}

func NewPort() *Port { return &Port{} }

func (p *Port) ClearReceived() {
	p.mu.Lock()
	p.clears++
	p.mu.Unlock()
}

func (p *Port) BusyWaitMicros(uint32) {
	p.mu.Lock()
	p.busyWaitCalls++
	p.mu.Unlock()
}

func (p *Port) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Attn is a software eci.AttentionLine that records every transition so
// tests can assert on retry-pulse counts.
type Attn struct {
	mu       sync.Mutex
	asserted bool
	pulses   int
}

func NewAttn() *Attn { return &Attn{} }

func (a *Attn) Set(asserted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if asserted && !a.asserted {
		a.pulses++
	}
	a.asserted = asserted
}

func (a *Attn) Asserted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.asserted
}

// Pulses counts how many times Set(true) transitioned from deasserted.
func (a *Attn) Pulses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}

// Master simulates the EC side of the bus: it knows nothing about
// packets, only how to drive OnBusEvent through the address/command/
// data phases of a single SMBus transaction.
type Master struct {
	Addr byte
}

// AddressSlave delivers the address phase. rnw selects a master read
// (block-read poll) vs. a master write (command byte to follow).
func (m *Master) AddressSlave(dev *eci.Device, rnw bool) {
	rnwBit := byte(0)
	if rnw {
		rnwBit = 1
	}
	dev.OnBusEvent(eci.Status{IRQ: true, START: true}, (m.Addr<<1)|rnwBit)
}

// SendCommandByte delivers the command byte of a master-write transaction.
func (m *Master) SendCommandByte(dev *eci.Device, cmdByte byte) {
	dev.OnBusEvent(eci.Status{IRQ: true}, cmdByte)
}

// WriteBytes delivers the remaining bytes of a master-write transaction
// (the payload of a response or event), terminated by STOP.
func (m *Master) WriteBytes(dev *eci.Device, data []byte) {
	for _, b := range data {
		dev.OnBusEvent(eci.Status{IRQ: true}, b)
	}
	dev.OnBusEvent(eci.Status{IRQ: true, STOP: true}, 0)
}

// DeliverInbound performs a full master-write transaction: address, then
// raw (whose first byte is the command byte), then STOP. raw is the full
// packet exactly as the EC would place it on the bus.
func (m *Master) DeliverInbound(dev *eci.Device, raw []byte) {
	m.AddressSlave(dev, false)
	m.SendCommandByte(dev, raw[0])
	m.WriteBytes(dev, raw[1:])
}

// beginBlockReadPoll drives the address-write, block-read-marker command
// byte, and the repeated-start/turnaround that together put the driver into
// BLOCK_READ. The repeated-start event is itself answered with the first
// transmitted byte (the driver loads it eagerly, the same way a real
// interrupt handler returns the next TX byte from the event that requests
// it), so it is returned here rather than discarded.
func (m *Master) beginBlockReadPoll(dev *eci.Device) (firstTx byte, haveTx bool) {
	m.AddressSlave(dev, false)
	m.SendCommandByte(dev, wire.BlockReadMarker)
	return dev.OnBusEvent(eci.Status{IRQ: true, RNW: true, START: true}, 0)
}

// PollBlockRead performs a master-read transaction (the EC polling for
// outbound data): it clocks out bytes, reading the packet's declared total
// length (size byte + 1) from the first byte, then sends STOP. n caps how
// many bytes it will read regardless of the declared length — pass a value
// at least as large as the packet to read it whole, or a smaller one to
// stop short deliberately (see PollBlockReadPremature).
func (m *Master) PollBlockRead(dev *eci.Device, n int) []byte {
	var got []byte
	total := -1 // unknown until the first (size) byte arrives

	if first, haveFirst := m.beginBlockReadPoll(dev); haveFirst && n > 0 {
		got = append(got, first)
		total = int(first) + 1
	}

	for len(got) < n && (total < 0 || len(got) < total) {
		tx, haveTx := dev.OnBusEvent(eci.Status{IRQ: true, RNW: true}, 0)
		if !haveTx {
			break
		}
		got = append(got, tx)
		if total < 0 {
			total = int(got[0]) + 1
		}
	}

	dev.OnBusEvent(eci.Status{IRQ: true, RNW: true, STOP: true}, 0)
	return got
}

// PollBlockReadPremature is PollBlockRead with n set deliberately smaller
// than the packet's declared length, simulating a bus glitch that ends the
// transaction early.
func (m *Master) PollBlockReadPremature(dev *eci.Device, n int) []byte {
	return m.PollBlockRead(dev, n)
}
