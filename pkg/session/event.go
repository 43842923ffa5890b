// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"

	"github.com/Thermoquad/parhelion/pkg/pus"
)

// EventKind classifies what PollOnce observed
type EventKind int

const (
	// EventTelemetry is any decoded packet that is not a verification report
	// of a tracked command
	EventTelemetry EventKind = iota
	// EventVerification is a report matched to a submitted command
	EventVerification
	// EventAnomaly is a frame that failed framing, decoding or validation, or
	// a report for an unknown sequence count
	EventAnomaly
	// EventTimeout is a command that ran out of time
	EventTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventTelemetry:
		return "TM"
	case EventVerification:
		return "VERIFY"
	case EventAnomaly:
		return "ANOMALY"
	case EventTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one observation of PollOnce
type Event struct {
	Kind EventKind
	Time time.Time

	// Packet is nil when the frame did not decode and for timeouts
	Packet *pus.Packet
	Report *pus.VerificationReport
	// Command is a snapshot taken after the event was applied
	Command *Command
	// Applied is set when the report moved the command forward. Duplicate
	// and regressive reports are delivered with Applied unset.
	Applied bool

	Raw []byte // undecodable frame
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventVerification:
		s := fmt.Sprintf("%s %s", e.Kind, e.Command)
		if !e.Applied {
			s += fmt.Sprintf(" (ignored %s)", pus.FormatSubservice(pus.ServiceVerification, e.Report.Subservice))
		}
		return s
	case EventTimeout:
		return fmt.Sprintf("%s %s", e.Kind, e.Command)
	case EventAnomaly:
		if e.Packet != nil {
			return fmt.Sprintf("%s %v: %s", e.Kind, e.Err, pus.FormatPacket(e.Packet))
		}
		return fmt.Sprintf("%s %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Kind, pus.FormatPacket(e.Packet))
	}
}
