// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// Header is the PUS data field header carried as the space packet
// secondary header.
//
// SourceID holds the TC source ID or the TM destination ID. MessageCounter
// and TimeRef only exist in telemetry; AckFlags only in telecommands. Time
// is always present in telemetry and never in telecommands.
type Header struct {
	Version        Version
	AckFlags       AckFlags
	Service        uint8
	Subservice     uint8
	SourceID       uint16
	MessageCounter uint16
	TimeRef        uint8
	Time           *CDSTime
}

// HeaderSize returns the encoded secondary header size for a packet type
func HeaderSize(v Version, typ ccsds.PacketType) (int, error) {
	switch {
	case v == VersionC && typ == ccsds.TC:
		return tcHeaderSizeC, nil
	case v == VersionC:
		return tmHeaderSizeC + CDSTimeSize, nil
	case v == VersionA && typ == ccsds.TC:
		return tcHeaderSizeA, nil
	case v == VersionA:
		return tmHeaderSizeA + CDSTimeSize, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
}

func (h Header) marshal(typ ccsds.PacketType) ([]byte, error) {
	size, err := HeaderSize(h.Version, typ)
	if err != nil {
		return nil, err
	}
	if h.AckFlags > AckAll {
		return nil, fmt.Errorf("%w: ack flags 0x%X", ErrFieldRange, uint8(h.AckFlags))
	}
	if h.TimeRef > 0x0F {
		return nil, fmt.Errorf("%w: time reference %d", ErrFieldRange, h.TimeRef)
	}

	b := make([]byte, size)
	b[1] = h.Service
	b[2] = h.Subservice

	switch h.Version {
	case VersionC:
		if typ == ccsds.TC {
			b[0] = byte(VersionC)<<4 | byte(h.AckFlags)
			binary.BigEndian.PutUint16(b[3:5], h.SourceID)
			return b, nil
		}
		b[0] = byte(VersionC)<<4 | h.TimeRef
		binary.BigEndian.PutUint16(b[3:5], h.MessageCounter)
		binary.BigEndian.PutUint16(b[5:7], h.SourceID)
		h.stamp().marshalTo(b[7:])

	case VersionA:
		if typ == ccsds.TC {
			if h.SourceID > 0xFF {
				return nil, fmt.Errorf("%w: PUS-A source ID %d", ErrFieldRange, h.SourceID)
			}
			b[0] = byte(VersionA)<<4 | byte(h.AckFlags)
			b[3] = byte(h.SourceID)
			return b, nil
		}
		if h.MessageCounter > 0xFF {
			return nil, fmt.Errorf("%w: PUS-A message counter %d", ErrFieldRange, h.MessageCounter)
		}
		b[0] = byte(VersionA) << 4
		b[3] = byte(h.MessageCounter)
		h.stamp().marshalTo(b[4:])
	}
	return b, nil
}

func (h Header) stamp() CDSTime {
	if h.Time != nil {
		return *h.Time
	}
	return NewCDSTime(timeNow())
}

// parseHeader reads the secondary header at the start of a data field and
// returns it together with its encoded size
func parseHeader(typ ccsds.PacketType, b []byte) (Header, int, error) {
	if len(b) == 0 {
		return Header{}, 0, fmt.Errorf("%w: empty data field", ErrServiceField)
	}

	h := Header{Version: Version(b[0] >> 4)}
	size, err := HeaderSize(h.Version, typ)
	if err != nil {
		return Header{}, 0, err
	}
	if len(b) < size {
		return Header{}, 0, fmt.Errorf("%w: %s %s header needs %d bytes, have %d",
			ErrServiceField, h.Version, typ, size, len(b))
	}

	h.Service = b[1]
	h.Subservice = b[2]

	switch {
	case h.Version == VersionC && typ == ccsds.TC:
		h.AckFlags = AckFlags(b[0] & 0x0F)
		h.SourceID = binary.BigEndian.Uint16(b[3:5])
	case h.Version == VersionC:
		h.TimeRef = b[0] & 0x0F
		h.MessageCounter = binary.BigEndian.Uint16(b[3:5])
		h.SourceID = binary.BigEndian.Uint16(b[5:7])
		t := parseCDSTime(b[7:])
		h.Time = &t
	case typ == ccsds.TC:
		h.AckFlags = AckFlags(b[0] & 0x0F)
		h.SourceID = uint16(b[3])
	default:
		h.MessageCounter = uint16(b[3])
		t := parseCDSTime(b[4:])
		h.Time = &t
	}
	return h, size, nil
}
