// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comif

import (
	"context"
	"fmt"
	"sync"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
	"github.com/Thermoquad/parhelion/pkg/pus"
)

// Dummy emulates a target in process. Every decodable telecommand is
// answered with the verification reports it requested.
//
// Replies are released in two batches so that a polling loop sees the
// command progress: acceptance and start arrive on the next drain, progress,
// service replies and completion on the drain after that.
type Dummy struct {
	apid uint16
	opts options

	mu      sync.Mutex
	open    bool
	ready   [][]byte
	pending [][][]byte
	seq     *ccsds.SequenceCounter
	fail    map[[2]uint8]uint16
	sent    [][]byte
}

// NewDummy creates an emulated target answering with telemetry on apid
func NewDummy(apid uint16, opts ...Option) *Dummy {
	return &Dummy{
		apid: apid,
		opts: buildOptions(opts),
		seq:  ccsds.NewSequenceCounter(),
		fail: make(map[[2]uint8]uint16),
	}
}

// ID describes the endpoint
func (d *Dummy) ID() string {
	return fmt.Sprintf("dummy://0x%03X", d.apid)
}

// Open starts the emulated target
func (d *Dummy) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

// Close stops the target and discards unsent replies
func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.ready = nil
	d.pending = nil
	return nil
}

// IsOpen reports whether the target is running
func (d *Dummy) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// FailCommand makes the target reject every telecommand of the given type at
// acceptance with code
func (d *Dummy) FailCommand(service, subservice uint8, code uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[[2]uint8{service, subservice}] = code
}

// Sent returns every packet the target received
func (d *Dummy) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sent...)
}

// Send hands a telecommand to the emulated target
func (d *Dummy) Send(packet []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return fmt.Errorf("%w: %s", ErrTransportClosed, d.ID())
	}
	d.sent = append(d.sent, append([]byte(nil), packet...))

	tc, err := pus.Decode(packet)
	if err != nil {
		d.opts.logger.Printf("%s: ignoring undecodable packet: %v", d.ID(), err)
		return nil
	}
	if !tc.IsTelecommand() {
		d.opts.logger.Printf("%s: ignoring telemetry packet", d.ID())
		return nil
	}

	first, second := d.replies(tc)
	d.ready = append(d.ready, first...)
	if len(second) > 0 {
		d.pending = append(d.pending, second)
	}
	return nil
}

// TryReceive returns the next reply. Once the ready batch is drained, the
// next pending batch is released for the following poll.
func (d *Dummy) TryReceive() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil, fmt.Errorf("%w: %s", ErrTransportClosed, d.ID())
	}
	if len(d.ready) > 0 {
		p := d.ready[0]
		d.ready = d.ready[1:]
		return p, nil
	}
	if len(d.pending) > 0 {
		d.ready = d.pending[0]
		d.pending = d.pending[1:]
	}
	return nil, nil
}

func (d *Dummy) replies(tc *pus.Packet) (first, second [][]byte) {
	ack := tc.Header.AckFlags

	if code, ok := d.fail[[2]uint8{tc.Service(), tc.Subservice()}]; ok {
		return [][]byte{d.report(tc, pus.SubAcceptanceFailure, 0, code)}, nil
	}

	if ack.Has(pus.AckAcceptance) {
		first = append(first, d.report(tc, pus.SubAcceptanceSuccess, 0, 0))
	}
	if ack.Has(pus.AckStart) {
		first = append(first, d.report(tc, pus.SubStartSuccess, 0, 0))
	}
	if ack.Has(pus.AckProgress) {
		second = append(second, d.report(tc, pus.SubProgressSuccess, 1, 0))
	}

	switch {
	case tc.Is(pus.ServiceTest, pus.SubPing):
		second = append(second, d.pack(pus.NewPingReply(d.apid, d.seq.Next(d.apid), tc.Header.SourceID)))
	case tc.Is(pus.ServiceTest, pus.SubTriggerEvent):
		ev, _ := pus.NewEvent(d.apid, d.seq.Next(d.apid), pus.Event{
			Severity:   pus.SubEventInfo,
			ID:         0x0001,
			ReporterID: uint32(d.apid),
		})
		second = append(second, d.pack(ev))
	}

	if ack.Has(pus.AckCompletion) {
		second = append(second, d.report(tc, pus.SubCompletionSuccess, 0, 0))
	}
	return first, second
}

func (d *Dummy) report(tc *pus.Packet, subservice, step uint8, code uint16) []byte {
	r, _ := pus.NewVerificationReport(d.apid, d.seq.Next(d.apid), tc.Primary, subservice, step, code)
	return d.pack(r)
}

func (d *Dummy) pack(p *pus.Packet) []byte {
	p.Header.MessageCounter = d.seq.Peek(d.apid)
	return p.MustPack()
}
