// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ccsds implements the CCSDS Space Packet primary header (CCSDS 133.0-B).
//
// A Space Packet is a 6-byte big-endian primary header followed by a packet data
// field of 1 to 65536 bytes. This package encodes and decodes the header, tracks
// per-APID source sequence counts and locates packet boundaries in byte streams.
package ccsds

import "errors"

// Header geometry
const (
	HeaderSize     = 6
	MaxDataLength  = 65536 // octets in the packet data field
	MaxPacketSize  = HeaderSize + MaxDataLength
	MaxAPID        = 0x7FF
	IdleAPID       = 0x7FF
	SequenceModulo = 1 << 14
	MaxSequence    = SequenceModulo - 1
)

// Bit masks within the first two header words
const (
	versionMask   = 0xE000
	typeMask      = 0x1000
	secHeaderMask = 0x0800
	apidMask      = 0x07FF
	seqFlagsMask  = 0xC000
	seqCountMask  = 0x3FFF
)

// PacketType distinguishes telemetry from telecommands.
type PacketType uint8

// Packet type values
const (
	TM PacketType = 0
	TC PacketType = 1
)

func (t PacketType) String() string {
	if t == TC {
		return "TC"
	}
	return "TM"
}

// SequenceFlags describe segmentation of user data across packets.
type SequenceFlags uint8

// Sequence flag values
const (
	SeqContinuation SequenceFlags = 0b00
	SeqFirst        SequenceFlags = 0b01
	SeqLast         SequenceFlags = 0b10
	SeqUnsegmented  SequenceFlags = 0b11
)

func (f SequenceFlags) String() string {
	switch f {
	case SeqContinuation:
		return "CONT"
	case SeqFirst:
		return "FIRST"
	case SeqLast:
		return "LAST"
	case SeqUnsegmented:
		return "UNSEG"
	default:
		return "INVALID"
	}
}

// Decode and encode failures
var (
	ErrMalformedHeader      = errors.New("malformed space packet header")
	ErrLengthMismatch       = errors.New("space packet length mismatch")
	ErrInvalidAPID          = errors.New("invalid APID")
	ErrInvalidSequenceFlags = errors.New("invalid sequence flags")
	ErrInvalidSequenceCount = errors.New("invalid sequence count")
)
