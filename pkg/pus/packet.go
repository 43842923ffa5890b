// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"time"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// Packet represents a PUS telecommand or telemetry packet
type Packet struct {
	Primary  ccsds.Header
	Header   Header
	Data     []byte // application data between the secondary header and the CRC
	CRC      uint16
	Received time.Time
}

// NewTelecommand creates a PUS-C telecommand
func NewTelecommand(apid, seqCount uint16, service, subservice uint8, ack AckFlags, sourceID uint16, data []byte) *Packet {
	return &Packet{
		Primary: ccsds.NewHeader(ccsds.TC, apid, seqCount, true),
		Header: Header{
			Version:    VersionC,
			AckFlags:   ack,
			Service:    service,
			Subservice: subservice,
			SourceID:   sourceID,
		},
		Data: data,
	}
}

// NewTelemetry creates a PUS-C telemetry packet. The time stamp is filled in
// when the packet is packed.
func NewTelemetry(apid, seqCount uint16, service, subservice uint8, destID uint16, data []byte) *Packet {
	return &Packet{
		Primary: ccsds.NewHeader(ccsds.TM, apid, seqCount, true),
		Header: Header{
			Version:    VersionC,
			Service:    service,
			Subservice: subservice,
			SourceID:   destID,
		},
		Data: data,
	}
}

// Type returns TM or TC
func (p *Packet) Type() ccsds.PacketType {
	return p.Primary.Type
}

// IsTelecommand reports whether the packet travels ground to space
func (p *Packet) IsTelecommand() bool {
	return p.Primary.Type == ccsds.TC
}

// APID returns the application process identifier
func (p *Packet) APID() uint16 {
	return p.Primary.APID
}

// SequenceCount returns the source sequence count
func (p *Packet) SequenceCount() uint16 {
	return p.Primary.SequenceCount
}

// Service returns the PUS service type
func (p *Packet) Service() uint8 {
	return p.Header.Service
}

// Subservice returns the PUS message subtype
func (p *Packet) Subservice() uint8 {
	return p.Header.Subservice
}

// Is reports whether the packet carries the given service and subservice
func (p *Packet) Is(service, subservice uint8) bool {
	return p.Header.Service == service && p.Header.Subservice == subservice
}

// Pack encodes the packet to wire format
func (p *Packet) Pack() ([]byte, error) {
	return Encode(p.Primary, p.Header, p.Data)
}

// MustPack encodes the packet to wire format.
// Panics on encoding error (use Pack for error handling).
func (p *Packet) MustPack() []byte {
	b, err := p.Pack()
	if err != nil {
		panic("pus: encode error: " + err.Error())
	}
	return b
}
