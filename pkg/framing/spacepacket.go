// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framing

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// SpacePacket splits an unframed stream of space packets using the length
// field of each primary header. Bytes that cannot start a packet are skipped.
type SpacePacket struct {
	maxLen int
	buf    []byte
}

// NewSpacePacket creates a length-field splitter. maxLen bounds the packet
// size accepted; zero or less means any valid space packet.
func NewSpacePacket(maxLen int) *SpacePacket {
	if maxLen <= 0 || maxLen > ccsds.MaxPacketSize {
		maxLen = ccsds.MaxPacketSize
	}
	return &SpacePacket{maxLen: maxLen}
}

// Buffered returns the number of bytes waiting for a complete packet
func (s *SpacePacket) Buffered() int {
	return len(s.buf)
}

// Feed buffers data and returns every complete packet
func (s *SpacePacket) Feed(data []byte) ([][]byte, error) {
	s.buf = append(s.buf, data...)

	var frames [][]byte
	var errs []error
	offset := 0
	skipped := 0

	for len(s.buf)-offset >= ccsds.HeaderSize {
		n, ok := ccsds.PacketLength(s.buf[offset:])
		if !ok || n > s.maxLen {
			offset++
			skipped++
			continue
		}
		if skipped > 0 {
			errs = append(errs, fmt.Errorf("%w: skipped %d bytes before packet", ErrFraming, skipped))
			skipped = 0
		}
		if len(s.buf)-offset < n {
			break
		}
		frames = append(frames, append([]byte(nil), s.buf[offset:offset+n]...))
		offset += n
	}
	if skipped > 0 {
		errs = append(errs, fmt.Errorf("%w: skipped %d bytes", ErrFraming, skipped))
	}

	if offset > 0 {
		s.buf = append(s.buf[:0], s.buf[offset:]...)
	}
	return frames, errors.Join(errs...)
}

// Reset drops any partial packet
func (s *SpacePacket) Reset() {
	s.buf = s.buf[:0]
}

// Frame checks that payload is exactly one space packet and returns it
// unchanged
func (s *SpacePacket) Frame(payload []byte) ([]byte, error) {
	n, ok := ccsds.PacketLength(payload)
	if !ok || n != len(payload) {
		return nil, fmt.Errorf("%w: payload is not a single space packet", ErrFraming)
	}
	if n > s.maxLen {
		return nil, fmt.Errorf("%w: %d byte packet exceeds %d byte limit", ErrFraming, n, s.maxLen)
	}
	return payload, nil
}
