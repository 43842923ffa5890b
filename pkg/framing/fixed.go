// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framing

import "fmt"

// Fixed yields frames of a constant size. There is no escaping; packets
// shorter than the frame are padded with the fill byte.
type Fixed struct {
	size int
	fill byte
	buf  []byte
}

// NewFixed creates a fixed-length framer
func NewFixed(size int, fill byte) (*Fixed, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d", size)
	}
	return &Fixed{
		size: size,
		fill: fill,
		buf:  make([]byte, 0, size),
	}, nil
}

// Size returns the frame length
func (f *Fixed) Size() int {
	return f.size
}

// Buffered returns the number of bytes waiting for a complete frame
func (f *Fixed) Buffered() int {
	return len(f.buf)
}

// Feed buffers data and returns every complete frame
func (f *Fixed) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	offset := 0
	for len(f.buf)-offset >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.buf[offset:offset+f.size])
		frames = append(frames, frame)
		offset += f.size
	}
	if offset > 0 {
		f.buf = append(f.buf[:0], f.buf[offset:]...)
	}
	return frames, nil
}

// Reset drops any partial frame
func (f *Fixed) Reset() {
	f.buf = f.buf[:0]
}

// Frame pads payload to the frame size
func (f *Fixed) Frame(payload []byte) ([]byte, error) {
	if len(payload) > f.size {
		return nil, fmt.Errorf("%w: %d byte packet exceeds %d byte frame", ErrFraming, len(payload), f.size)
	}
	frame := make([]byte, f.size)
	copy(frame, payload)
	for i := len(payload); i < f.size; i++ {
		frame[i] = f.fill
	}
	return frame, nil
}
