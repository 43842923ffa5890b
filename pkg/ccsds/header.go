// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccsds

import (
	"encoding/binary"
	"fmt"
)

// Header is the CCSDS Space Packet primary header
type Header struct {
	Version         uint8
	Type            PacketType
	SecondaryHeader bool
	APID            uint16
	SequenceFlags   SequenceFlags
	SequenceCount   uint16
	DataLength      uint16 // octets in the data field minus one
}

// NewHeader returns an unsegmented header with version 0
func NewHeader(typ PacketType, apid uint16, seqCount uint16, secondaryHeader bool) Header {
	return Header{
		Type:            typ,
		SecondaryHeader: secondaryHeader,
		APID:            apid,
		SequenceFlags:   SeqUnsegmented,
		SequenceCount:   seqCount,
	}
}

// PacketID returns the first 16-bit header word (version, type, flag, APID)
func (h Header) PacketID() uint16 {
	id := uint16(h.Version&0x07)<<13 | h.APID&apidMask
	if h.Type == TC {
		id |= typeMask
	}
	if h.SecondaryHeader {
		id |= secHeaderMask
	}
	return id
}

// SequenceControl returns the second 16-bit header word (flags, count)
func (h Header) SequenceControl() uint16 {
	return uint16(h.SequenceFlags&0x03)<<14 | h.SequenceCount&seqCountMask
}

// PacketSize is the total size announced by DataLength
func (h Header) PacketSize() int {
	return HeaderSize + int(h.DataLength) + 1
}

// Validate checks every field against its bit width
func (h Header) Validate() error {
	if h.Version != 0 {
		return fmt.Errorf("%w: version %d", ErrMalformedHeader, h.Version)
	}
	if h.APID > MaxAPID {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidAPID, h.APID, MaxAPID)
	}
	if h.SequenceFlags > SeqUnsegmented {
		return fmt.Errorf("%w: %d", ErrInvalidSequenceFlags, h.SequenceFlags)
	}
	if h.SequenceCount > MaxSequence {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidSequenceCount, h.SequenceCount, MaxSequence)
	}
	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("%s apid=0x%03X seq=%d %s len=%d", h.Type, h.APID, h.SequenceCount, h.SequenceFlags, h.PacketSize())
}

// MarshalTo writes the 6 header bytes into b
func (h Header) MarshalTo(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.PacketID())
	binary.BigEndian.PutUint16(b[2:4], h.SequenceControl())
	binary.BigEndian.PutUint16(b[4:6], h.DataLength)
}

// ParseHeader reads the primary header from the start of b
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedHeader, len(b), HeaderSize)
	}
	id := binary.BigEndian.Uint16(b[0:2])
	ctrl := binary.BigEndian.Uint16(b[2:4])

	h := Header{
		Version:         uint8((id & versionMask) >> 13),
		Type:            PacketType((id & typeMask) >> 12),
		SecondaryHeader: id&secHeaderMask != 0,
		APID:            id & apidMask,
		SequenceFlags:   SequenceFlags((ctrl & seqFlagsMask) >> 14),
		SequenceCount:   ctrl & seqCountMask,
		DataLength:      binary.BigEndian.Uint16(b[4:6]),
	}
	if h.Version != 0 {
		return h, fmt.Errorf("%w: version %d", ErrMalformedHeader, h.Version)
	}
	return h, nil
}
