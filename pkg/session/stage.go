// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"

	"github.com/Thermoquad/parhelion/pkg/pus"
)

// State is the verification stage a telecommand has reached
type State int

const (
	StateSent State = iota
	StateAccepted
	StateStarted
	StateInProgress
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "Sent"
	case StateAccepted:
		return "Accepted"
	case StateStarted:
		return "Started"
	case StateInProgress:
		return "InProgress"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further report can change the state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Stage is the full lifecycle position of a telecommand
type Stage struct {
	State State
	// Step is the last progress step, or the failed step of a progress failure
	Step uint8
	// Phase is the step that failed: StateAccepted for a rejected acceptance,
	// StateCompleted for a failed completion, and so on. For timeouts it is
	// the state the command was stuck in.
	Phase     State
	ErrorCode uint16
	Timeout   bool
	// Final is set once the command received the last report it asked for.
	// It no longer times out, but a later failure report still applies.
	Final bool
}

// Finished reports whether nothing more is awaited for the command
func (s Stage) Finished() bool {
	return s.Final || s.State.Terminal()
}

func (s Stage) String() string {
	var str string
	switch {
	case s.State == StateInProgress:
		str = fmt.Sprintf("InProgress(%d)", s.Step)
	case s.State == StateFailed && s.Timeout:
		return fmt.Sprintf("Failed(timeout in %s)", s.Phase)
	case s.State == StateFailed:
		return fmt.Sprintf("Failed(%s, code 0x%04X)", phaseName(s.Phase), s.ErrorCode)
	default:
		str = s.State.String()
	}
	if s.Final && s.State != StateCompleted {
		str += " (done)"
	}
	return str
}

// FinalState is the last state a target reports for a command sent with ack.
// Progress reports are open-ended, so a command asking for progress but not
// completion is done at its first progress report.
func FinalState(ack pus.AckFlags) State {
	switch {
	case ack.Has(pus.AckCompletion):
		return StateCompleted
	case ack.Has(pus.AckProgress):
		return StateInProgress
	case ack.Has(pus.AckStart):
		return StateStarted
	case ack.Has(pus.AckAcceptance):
		return StateAccepted
	default:
		return StateSent
	}
}

// Err returns nil unless the command failed. Timeouts match ErrTimeout,
// negative reports match ErrFailed.
func (s Stage) Err() error {
	switch {
	case s.State != StateFailed:
		return nil
	case s.Timeout:
		return fmt.Errorf("%w: no report while %s", ErrTimeout, s.Phase)
	case s.Phase == StateInProgress:
		return fmt.Errorf("%w: progress step %d failed with code 0x%04X", ErrFailed, s.Step, s.ErrorCode)
	default:
		return fmt.Errorf("%w: %s failed with code 0x%04X", ErrFailed, phaseName(s.Phase), s.ErrorCode)
	}
}

func phaseName(s State) string {
	switch s {
	case StateAccepted:
		return "acceptance"
	case StateStarted:
		return "start"
	case StateInProgress:
		return "progress"
	case StateCompleted:
		return "completion"
	default:
		return s.String()
	}
}

// advance applies a verification report to cur. Failure reports end any
// open command; success reports only ever move it forward.
func advance(cur Stage, r *pus.VerificationReport) (Stage, bool) {
	if cur.State.Terminal() {
		return cur, false
	}

	var next Stage
	switch r.Subservice {
	case pus.SubAcceptanceSuccess:
		next = Stage{State: StateAccepted}
	case pus.SubStartSuccess:
		next = Stage{State: StateStarted}
	case pus.SubProgressSuccess:
		next = Stage{State: StateInProgress, Step: r.Step}
	case pus.SubCompletionSuccess:
		next = Stage{State: StateCompleted}
	case pus.SubAcceptanceFailure:
		return Stage{State: StateFailed, Phase: StateAccepted, ErrorCode: r.ErrorCode}, true
	case pus.SubStartFailure:
		return Stage{State: StateFailed, Phase: StateStarted, ErrorCode: r.ErrorCode}, true
	case pus.SubProgressFailure:
		return Stage{State: StateFailed, Phase: StateInProgress, Step: r.Step, ErrorCode: r.ErrorCode}, true
	case pus.SubCompletionFailure:
		return Stage{State: StateFailed, Phase: StateCompleted, ErrorCode: r.ErrorCode}, true
	default:
		return cur, false
	}

	if next.State > cur.State {
		return next, true
	}
	if next.State == StateInProgress && cur.State == StateInProgress && next.Step > cur.Step {
		return next, true
	}
	return cur, false
}

// Command is a submitted telecommand and its verification progress
type Command struct {
	APID          uint16
	SequenceCount uint16
	Service       uint8
	Subservice    uint8
	Ack           pus.AckFlags
	SubmittedAt   time.Time
	UpdatedAt     time.Time // last report, or submission
	Stage         Stage
}

func (c Command) String() string {
	return fmt.Sprintf("TC(%d,%d) APID 0x%03X seq %d: %s",
		c.Service, c.Subservice, c.APID, c.SequenceCount, c.Stage)
}

type key struct {
	apid uint16
	seq  uint16
}

func (c *Command) key() key {
	return key{apid: c.APID, seq: c.SequenceCount}
}
