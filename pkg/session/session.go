// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session tracks telecommands from submission to their final
// verification report.
//
// A Session owns the sequence counters of its ground station and the table
// of outstanding commands. PollOnce drains the communication interface,
// decodes every frame, routes service 1 reports to the command they verify
// and expires commands that went quiet for longer than the configured
// timeout. Commands that complete, fail or receive the last report they asked
// for move to a bounded archive. Commands sent without acknowledgement flags
// are archived as soon as they are sent.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
	"github.com/Thermoquad/parhelion/pkg/comif"
	"github.com/Thermoquad/parhelion/pkg/pus"
)

var (
	ErrTimeout              = errors.New("command timed out")
	ErrFailed               = errors.New("command failed")
	ErrUnknownSequenceCount = errors.New("report for unknown sequence count")
	ErrNotFound             = errors.New("command not found")
)

// Defaults
const (
	DefaultTimeout     = 10 * time.Second
	DefaultArchiveSize = 1024
	maxDrain           = 4 * comif.DefaultQueueSize
)

// Recorder receives every frame crossing the interface
type Recorder interface {
	RecordTX(frame []byte) error
	RecordRX(frame []byte) error
}

// Config configures a Session
type Config struct {
	APID     uint16      // default target application
	SourceID uint16      // ground station ID placed in every telecommand
	Version  pus.Version // zero selects PUS-C

	// Timeout bounds the time between two reports of an open command
	Timeout time.Duration
	// SendRetries is how often a send failing with comif.ErrIO is repeated
	SendRetries int
	RetryDelay  time.Duration
	ArchiveSize int

	Logger   *log.Logger
	Recorder Recorder
	Clock    func() time.Time
}

// Session is the telecommand lifecycle manager of one interface
type Session struct {
	iface comif.Interface
	cfg   Config
	log   *log.Logger
	now   func() time.Time
	seq   *ccsds.SequenceCounter
	stats *pus.Statistics

	mu      sync.Mutex
	pending map[key]*Command
	archive []*Command // oldest first
}

// New creates a session on iface. The interface is opened and closed by the
// caller.
func New(iface comif.Interface, cfg Config) (*Session, error) {
	if cfg.APID > ccsds.MaxAPID {
		return nil, fmt.Errorf("%w: 0x%X", ccsds.ErrInvalidAPID, cfg.APID)
	}
	if cfg.Version == 0 {
		cfg.Version = pus.VersionC
	}
	if _, err := pus.HeaderSize(cfg.Version, ccsds.TC); err != nil {
		return nil, err
	}
	if cfg.Version == pus.VersionA && cfg.SourceID > 0xFF {
		return nil, fmt.Errorf("%w: PUS-A source ID %d", pus.ErrFieldRange, cfg.SourceID)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ArchiveSize <= 0 {
		cfg.ArchiveSize = DefaultArchiveSize
	}
	if cfg.SendRetries < 0 {
		cfg.SendRetries = 0
	}

	s := &Session{
		iface:   iface,
		cfg:     cfg,
		log:     cfg.Logger,
		now:     cfg.Clock,
		seq:     ccsds.NewSequenceCounter(),
		stats:   pus.NewStatistics(),
		pending: make(map[key]*Command),
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Interface returns the communication interface of the session
func (s *Session) Interface() comif.Interface {
	return s.iface
}

// Stats returns the downlink statistics
func (s *Session) Stats() *pus.Statistics {
	return s.stats
}

// Submit sends a telecommand to the default APID and returns its sequence
// count
func (s *Session) Submit(service, subservice uint8, payload []byte, ack pus.AckFlags) (uint16, error) {
	return s.SubmitTo(s.cfg.APID, service, subservice, payload, ack)
}

// SubmitTo sends a telecommand to apid. The command is tracked in state Sent
// until reports arrive. With pus.AckNone no report is awaited and the command
// is archived as sent. A failed send consumes the sequence count but leaves
// nothing tracked.
func (s *Session) SubmitTo(apid uint16, service, subservice uint8, payload []byte, ack pus.AckFlags) (uint16, error) {
	s.mu.Lock()
	seq := s.seq.Peek(apid)
	tc := pus.NewTelecommand(apid, seq, service, subservice, ack, s.cfg.SourceID, payload)
	tc.Header.Version = s.cfg.Version
	frame, err := tc.Pack()
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("failed to encode TC(%d,%d): %w", service, subservice, err)
	}
	s.seq.Next(apid)

	now := s.now()
	cmd := &Command{
		APID:          apid,
		SequenceCount: seq,
		Service:       service,
		Subservice:    subservice,
		Ack:           ack,
		SubmittedAt:   now,
		UpdatedAt:     now,
		Stage:         Stage{State: StateSent, Final: ack == pus.AckNone},
	}
	if old, ok := s.pending[cmd.key()]; ok {
		s.log.Printf("sequence count %d reused while %s is still open, dropping it", seq, old)
	}
	if cmd.Stage.Final {
		// Registered before sending so an early rejection still finds it
		s.retire(cmd)
	} else {
		s.pending[cmd.key()] = cmd
	}
	s.mu.Unlock()

	s.record(true, frame)
	if err := s.send(frame); err != nil {
		s.mu.Lock()
		s.forget(cmd)
		s.mu.Unlock()
		return 0, err
	}

	s.log.Printf("sent TC(%d,%d) APID 0x%03X seq %d ack %s", service, subservice, apid, seq, ack)
	return seq, nil
}

func (s *Session) send(frame []byte) error {
	var err error
	for attempt := 0; attempt <= s.cfg.SendRetries; attempt++ {
		if attempt > 0 {
			s.log.Printf("send failed (%v), retry %d/%d", err, attempt, s.cfg.SendRetries)
			time.Sleep(s.cfg.RetryDelay)
		}
		err = s.iface.Send(frame)
		if err == nil || !errors.Is(err, comif.ErrIO) {
			return err
		}
	}
	return err
}

func (s *Session) record(tx bool, frame []byte) {
	r := s.cfg.Recorder
	if r == nil {
		return
	}
	var err error
	if tx {
		err = r.RecordTX(frame)
	} else {
		err = r.RecordRX(frame)
	}
	if err != nil {
		s.log.Printf("capture: %v", err)
	}
}

// PollOnce drains the interface and applies everything received, then fails
// commands whose timeout elapsed. Malformed input is reported as anomaly
// events. The error is non-nil only when the transport is closed or broken;
// the events gathered until then are still returned.
func (s *Session) PollOnce() ([]Event, error) {
	var events []Event
	for i := 0; i < maxDrain; i++ {
		raw, err := s.iface.TryReceive()
		if err != nil {
			if errors.Is(err, comif.ErrIO) || errors.Is(err, comif.ErrTransportClosed) {
				return append(events, s.expire()...), err
			}
			s.stats.AddFramingError()
			events = append(events, Event{Kind: EventAnomaly, Time: s.now(), Err: err})
			continue
		}
		if raw == nil {
			break
		}
		events = append(events, s.handleFrame(raw)...)
	}
	return append(events, s.expire()...), nil
}

func (s *Session) handleFrame(raw []byte) []Event {
	now := s.now()
	s.record(false, raw)

	pkt, err := pus.Decode(raw)
	if err != nil {
		s.stats.Update(nil, err, nil)
		return []Event{{Kind: EventAnomaly, Time: now, Raw: raw, Err: err}}
	}
	pkt.Received = now

	verrs := pus.ValidatePacket(pkt)
	s.stats.Update(pkt, nil, verrs)

	var events []Event
	for i := range verrs {
		events = append(events, Event{Kind: EventAnomaly, Time: now, Packet: pkt, Err: &verrs[i]})
	}

	if !pkt.IsTelecommand() && pkt.Service() == pus.ServiceVerification {
		if r, err := pus.ParseVerificationReport(pkt); err == nil {
			return append(events, s.applyReport(pkt, r, now))
		}
	}
	return append(events, Event{Kind: EventTelemetry, Time: now, Packet: pkt})
}

func (s *Session) applyReport(pkt *pus.Packet, r *pus.VerificationReport, now time.Time) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{Kind: EventVerification, Time: now, Packet: pkt, Report: r}
	k := key{apid: r.APID(), seq: r.SequenceCount()}

	cmd, ok := s.pending[k]
	if !ok {
		cmd = s.findArchived(k)
	}
	if cmd == nil {
		ev.Kind = EventAnomaly
		ev.Err = fmt.Errorf("%w: %d on APID 0x%03X", ErrUnknownSequenceCount, k.seq, k.apid)
		return ev
	}

	if next, changed := advance(cmd.Stage, r); changed {
		if !next.State.Terminal() && (cmd.Stage.Final || next.State >= FinalState(cmd.Ack)) {
			next.Final = true
		}
		cmd.Stage = next
		cmd.UpdatedAt = now
		ev.Applied = true
		if ok && next.Finished() {
			s.retire(cmd)
		}
		s.log.Printf("%s", cmd)
	}
	snap := *cmd
	ev.Command = &snap
	return ev
}

// expire fails every open command whose last activity is at least Timeout ago.
// Only commands still awaiting a requested report are pending.
func (s *Session) expire() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*Command
	for _, cmd := range s.pending {
		if now.Sub(cmd.UpdatedAt) >= s.cfg.Timeout {
			expired = append(expired, cmd)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].APID != expired[j].APID {
			return expired[i].APID < expired[j].APID
		}
		return expired[i].SequenceCount < expired[j].SequenceCount
	})

	events := make([]Event, 0, len(expired))
	for _, cmd := range expired {
		cmd.Stage = Stage{State: StateFailed, Phase: cmd.Stage.State, Step: cmd.Stage.Step, Timeout: true}
		cmd.UpdatedAt = now
		s.retire(cmd)
		s.log.Printf("%s", cmd)

		snap := *cmd
		events = append(events, Event{Kind: EventTimeout, Time: now, Command: &snap, Err: cmd.Stage.Err()})
	}
	return events
}

// retire moves cmd from the pending table to the archive
func (s *Session) retire(cmd *Command) {
	delete(s.pending, cmd.key())
	s.archive = append(s.archive, cmd)
	if over := len(s.archive) - s.cfg.ArchiveSize; over > 0 {
		s.archive = append(s.archive[:0:0], s.archive[over:]...)
	}
}

// forget drops cmd from the pending table or the archive
func (s *Session) forget(cmd *Command) {
	if s.pending[cmd.key()] == cmd {
		delete(s.pending, cmd.key())
		return
	}
	for i, c := range s.archive {
		if c == cmd {
			s.archive = append(s.archive[:i:i], s.archive[i+1:]...)
			return
		}
	}
}

func (s *Session) findArchived(k key) *Command {
	for i := len(s.archive) - 1; i >= 0; i-- {
		if s.archive[i].key() == k {
			return s.archive[i]
		}
	}
	return nil
}

// Status returns the stage of the command with sequence count seq on the
// default APID
func (s *Session) Status(seq uint16) (Stage, error) {
	return s.StatusFor(s.cfg.APID, seq)
}

// StatusFor returns the stage of a pending or archived command
func (s *Session) StatusFor(apid, seq uint16) (Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{apid: apid, seq: seq}
	if cmd, ok := s.pending[k]; ok {
		return cmd.Stage, nil
	}
	if cmd := s.findArchived(k); cmd != nil {
		return cmd.Stage, nil
	}
	return Stage{}, fmt.Errorf("%w: %d on APID 0x%03X", ErrNotFound, seq, apid)
}

// Cancel stops tracking an open command on the default APID. The command is
// not retracted from the target; later reports for it are anomalies.
func (s *Session) Cancel(seq uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{apid: s.cfg.APID, seq: seq}
	if _, ok := s.pending[k]; !ok {
		return fmt.Errorf("%w: %d on APID 0x%03X", ErrNotFound, seq, s.cfg.APID)
	}
	delete(s.pending, k)
	s.log.Printf("cancelled seq %d", seq)
	return nil
}

// Pending returns the open commands ordered by submission
func (s *Session) Pending() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, 0, len(s.pending))
	for _, cmd := range s.pending {
		out = append(out, *cmd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].SequenceCount < out[j].SequenceCount
	})
	return out
}

// Archived returns finished commands, oldest first
func (s *Session) Archived() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, len(s.archive))
	for i, cmd := range s.archive {
		out[i] = *cmd
	}
	return out
}
