// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// Encode builds a complete PUS packet: primary header with the secondary
// header flag forced on, PUS header, application data and the CRC trailer.
// DataLength in primary is derived.
func Encode(primary ccsds.Header, h Header, data []byte) ([]byte, error) {
	secondary, err := h.marshal(primary.Type)
	if err != nil {
		return nil, err
	}

	field := make([]byte, len(secondary)+len(data)+CRCSize)
	copy(field, secondary)
	copy(field[len(secondary):], data)

	primary.SecondaryHeader = true
	packet, err := ccsds.Encode(primary, field)
	if err != nil {
		return nil, fmt.Errorf("failed to encode space packet: %w", err)
	}

	end := len(packet) - CRCSize
	binary.BigEndian.PutUint16(packet[end:], CalculateCRC(packet[:end]))
	return packet, nil
}

// Decode parses exactly one PUS packet.
//
// The CRC is verified over the whole input before any header field is
// trusted, so a corrupted length or version field reports ErrChecksum.
// Packets without the secondary header flag decode with a zero Header and
// everything before the CRC in Data. Decode never panics on arbitrary input.
func Decode(b []byte) (*Packet, error) {
	if len(b) < ccsds.HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ccsds.ErrMalformedHeader, len(b))
	}
	if len(b) < ccsds.HeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d bytes leaves no room for CRC", ccsds.ErrLengthMismatch, len(b))
	}

	end := len(b) - CRCSize
	received := binary.BigEndian.Uint16(b[end:])
	if calculated := CalculateCRC(b[:end]); calculated != received {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksum, calculated, received)
	}

	primary, field, err := ccsds.Decode(b)
	if err != nil {
		return nil, err
	}
	field = field[:len(field)-CRCSize]

	p := &Packet{Primary: primary, CRC: received}
	if primary.SecondaryHeader {
		h, size, err := parseHeader(primary.Type, field)
		if err != nil {
			return nil, err
		}
		p.Header = h
		field = field[size:]
	}

	p.Data = append([]byte(nil), field...)
	return p, nil
}
