// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

const requestIDSize = 4

// VerificationReport is the source data of a service 1 report
type VerificationReport struct {
	Subservice      uint8
	PacketID        uint16 // packet ID of the verified telecommand
	SequenceControl uint16 // sequence control of the verified telecommand
	Step            uint8  // progress step, subservices 5 and 6 only
	ErrorCode       uint16 // failure subservices only
	FailureData     []byte
}

// APID returns the APID of the verified telecommand
func (r *VerificationReport) APID() uint16 {
	return r.PacketID & ccsds.MaxAPID
}

// SequenceCount returns the sequence count of the verified telecommand
func (r *VerificationReport) SequenceCount() uint16 {
	return r.SequenceControl & ccsds.MaxSequence
}

// Success reports whether the report is positive. Success subservices are odd.
func (r *VerificationReport) Success() bool {
	return r.Subservice%2 == 1
}

// IsProgress reports whether the report carries a step number
func (r *VerificationReport) IsProgress() bool {
	return r.Subservice == SubProgressSuccess || r.Subservice == SubProgressFailure
}

// MarshalBinary encodes the report source data
func (r *VerificationReport) MarshalBinary() ([]byte, error) {
	if r.Subservice < SubAcceptanceSuccess || r.Subservice > SubCompletionFailure {
		return nil, fmt.Errorf("%w: verification subservice %d", ErrFieldRange, r.Subservice)
	}
	b := make([]byte, requestIDSize, requestIDSize+3+len(r.FailureData))
	binary.BigEndian.PutUint16(b[0:2], r.PacketID)
	binary.BigEndian.PutUint16(b[2:4], r.SequenceControl)
	if r.IsProgress() {
		b = append(b, r.Step)
	}
	if !r.Success() {
		b = binary.BigEndian.AppendUint16(b, r.ErrorCode)
		b = append(b, r.FailureData...)
	}
	return b, nil
}

// ParseVerificationReport reads the service 1 source data of p
func ParseVerificationReport(p *Packet) (*VerificationReport, error) {
	if p.Header.Service != ServiceVerification {
		return nil, fmt.Errorf("%w: service %d is not verification", ErrWrongService, p.Header.Service)
	}
	sub := p.Header.Subservice
	if sub < SubAcceptanceSuccess || sub > SubCompletionFailure {
		return nil, fmt.Errorf("%w: verification subservice %d", ErrFieldRange, sub)
	}

	r := &VerificationReport{Subservice: sub}
	need := requestIDSize
	if r.IsProgress() {
		need++
	}
	if !r.Success() {
		need += 2
	}
	if len(p.Data) < need {
		return nil, fmt.Errorf("%w: verification report %d needs %d bytes, have %d",
			ErrPayloadLength, sub, need, len(p.Data))
	}

	r.PacketID = binary.BigEndian.Uint16(p.Data[0:2])
	r.SequenceControl = binary.BigEndian.Uint16(p.Data[2:4])
	i := requestIDSize
	if r.IsProgress() {
		r.Step = p.Data[i]
		i++
	}
	if !r.Success() {
		r.ErrorCode = binary.BigEndian.Uint16(p.Data[i : i+2])
		if rest := p.Data[i+2:]; len(rest) > 0 {
			r.FailureData = append([]byte(nil), rest...)
		}
	}
	return r, nil
}

// NewVerificationReport builds a service 1 telemetry packet verifying the
// telecommand with primary header tc
func NewVerificationReport(apid, seqCount uint16, tc ccsds.Header, subservice, step uint8, errorCode uint16) (*Packet, error) {
	r := &VerificationReport{
		Subservice:      subservice,
		PacketID:        tc.PacketID(),
		SequenceControl: tc.SequenceControl(),
		Step:            step,
		ErrorCode:       errorCode,
	}
	data, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return NewTelemetry(apid, seqCount, ServiceVerification, subservice, 0, data), nil
}
