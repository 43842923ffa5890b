// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"errors"
	"fmt"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyUnknownSubservice
	AnomalyInvalidValue
	AnomalyUnexpectedDirection
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "length mismatch"
	case AnomalyUnknownSubservice:
		return "unknown subservice"
	case AnomalyInvalidValue:
		return "invalid value"
	case AnomalyUnexpectedDirection:
		return "unexpected direction"
	default:
		return "unknown anomaly"
	}
}

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks the application data of a decoded telemetry packet
// against its service layout. Returns an empty slice when the packet is valid.
func ValidatePacket(p *Packet) []ValidationError {
	errs := []ValidationError{}

	if p.IsTelecommand() {
		return append(errs, ValidationError{
			Type:    AnomalyUnexpectedDirection,
			Message: fmt.Sprintf("telecommand [%d,%d] received on the downlink", p.Header.Service, p.Header.Subservice),
			Details: map[string]interface{}{"service": p.Header.Service, "subservice": p.Header.Subservice},
		})
	}

	switch p.Header.Service {
	case ServiceVerification:
		errs = append(errs, validateVerification(p)...)
	case ServiceEvent:
		errs = append(errs, validateEvent(p)...)
	case ServiceTest:
		if p.Header.Subservice != SubPingReply {
			errs = append(errs, unknownSubservice(p))
		}
	}
	return errs
}

func validateVerification(p *Packet) []ValidationError {
	r, err := ParseVerificationReport(p)
	switch {
	case errors.Is(err, ErrFieldRange):
		return []ValidationError{unknownSubservice(p)}
	case err != nil:
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s report too short (%d bytes)", FormatSubservice(p.Header.Service, p.Header.Subservice), len(p.Data)),
			Details: map[string]interface{}{"length": len(p.Data)},
		}}
	}

	errs := []ValidationError{}
	if r.PacketID&0x1000 == 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("verified packet ID 0x%04X is not a telecommand", r.PacketID),
			Details: map[string]interface{}{"packet_id": r.PacketID},
		})
	}
	if r.PacketID>>13 != 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("verified packet ID 0x%04X has nonzero version", r.PacketID),
			Details: map[string]interface{}{"packet_id": r.PacketID},
		})
	}
	if r.IsProgress() && r.Step == 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "progress report with step 0",
			Details: map[string]interface{}{"step": r.Step, "seq": r.SequenceCount()},
		})
	}
	return errs
}

func validateEvent(p *Packet) []ValidationError {
	if p.Header.Subservice > SubEventHighSeverity || p.Header.Subservice == 0 {
		return []ValidationError{unknownSubservice(p)}
	}
	if _, err := ParseEvent(p); err != nil {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("event report too short (%d bytes, expected %d)", len(p.Data), eventSize),
			Details: map[string]interface{}{"length": len(p.Data), "expected": eventSize},
		}}
	}
	return nil
}

func unknownSubservice(p *Packet) ValidationError {
	return ValidationError{
		Type:    AnomalyUnknownSubservice,
		Message: fmt.Sprintf("unknown subservice [%d,%d]", p.Header.Service, p.Header.Subservice),
		Details: map[string]interface{}{"service": p.Header.Service, "subservice": p.Header.Subservice, "apid": p.APID()},
	}
}
