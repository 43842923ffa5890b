// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"
)

const eventSize = 14

// Event is a service 5 event report. Severity is the report subservice.
type Event struct {
	Severity   uint8
	ID         uint16
	ReporterID uint32
	Param1     uint32
	Param2     uint32
}

// MarshalBinary encodes the event source data
func (e *Event) MarshalBinary() ([]byte, error) {
	b := make([]byte, eventSize)
	binary.BigEndian.PutUint16(b[0:2], e.ID)
	binary.BigEndian.PutUint32(b[2:6], e.ReporterID)
	binary.BigEndian.PutUint32(b[6:10], e.Param1)
	binary.BigEndian.PutUint32(b[10:14], e.Param2)
	return b, nil
}

// ParseEvent reads the service 5 source data of p
func ParseEvent(p *Packet) (*Event, error) {
	if p.Header.Service != ServiceEvent {
		return nil, fmt.Errorf("%w: service %d is not event reporting", ErrWrongService, p.Header.Service)
	}
	if p.Header.Subservice < SubEventInfo || p.Header.Subservice > SubEventHighSeverity {
		return nil, fmt.Errorf("%w: event subservice %d", ErrFieldRange, p.Header.Subservice)
	}
	if len(p.Data) < eventSize {
		return nil, fmt.Errorf("%w: event needs %d bytes, have %d", ErrPayloadLength, eventSize, len(p.Data))
	}
	return &Event{
		Severity:   p.Header.Subservice,
		ID:         binary.BigEndian.Uint16(p.Data[0:2]),
		ReporterID: binary.BigEndian.Uint32(p.Data[2:6]),
		Param1:     binary.BigEndian.Uint32(p.Data[6:10]),
		Param2:     binary.BigEndian.Uint32(p.Data[10:14]),
	}, nil
}

// NewEvent builds a service 5 event report
func NewEvent(apid, seqCount uint16, e Event) (*Packet, error) {
	if e.Severity < SubEventInfo || e.Severity > SubEventHighSeverity {
		return nil, fmt.Errorf("%w: event severity %d", ErrFieldRange, e.Severity)
	}
	data, _ := e.MarshalBinary()
	return NewTelemetry(apid, seqCount, ServiceEvent, e.Severity, 0, data), nil
}
