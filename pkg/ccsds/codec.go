// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccsds

import "fmt"

// Encode builds a complete space packet. DataLength is derived from the payload;
// the value carried in h is ignored.
func Encode(h Header, payload []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(payload) == 0 || len(payload) > MaxDataLength {
		return nil, fmt.Errorf("%w: data field of %d bytes (valid 1-%d)", ErrLengthMismatch, len(payload), MaxDataLength)
	}
	h.DataLength = uint16(len(payload) - 1)

	packet := make([]byte, HeaderSize+len(payload))
	h.MarshalTo(packet)
	copy(packet[HeaderSize:], payload)
	return packet, nil
}

// Decode parses exactly one space packet. The returned payload aliases b.
func Decode(b []byte) (Header, []byte, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	if h.PacketSize() != len(b) {
		return Header{}, nil, fmt.Errorf("%w: header announces %d bytes, got %d", ErrLengthMismatch, h.PacketSize(), len(b))
	}
	return h, b[HeaderSize:], nil
}

// PacketLength returns the total packet size announced by the header at the
// start of b. ok is false when b is shorter than a header or the version
// bits are not zero.
func PacketLength(b []byte) (n int, ok bool) {
	h, err := ParseHeader(b)
	if err != nil {
		return 0, false
	}
	return h.PacketSize(), true
}

// TrimPadding cuts a fixed-size frame down to the packet it carries. Frames
// whose header announces more bytes than available are returned unchanged so
// that Decode reports the mismatch.
func TrimPadding(frame []byte) []byte {
	n, ok := PacketLength(frame)
	if !ok || n > len(frame) {
		return frame
	}
	return frame[:n]
}
