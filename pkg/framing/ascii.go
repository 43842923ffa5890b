// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framing

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// Default ASCII control characters
const (
	DefaultStart  = 0x02 // STX
	DefaultStop   = 0x03 // ETX
	DefaultEscape = 0x10 // DLE
	DefaultEscXor = 0x40
)

// ParseState is the position of the ASCII parser within a frame
type ParseState int

const (
	AwaitingStart ParseState = iota
	InFrame
	InEscape
)

func (s ParseState) String() string {
	switch s {
	case AwaitingStart:
		return "AwaitingStart"
	case InFrame:
		return "InFrame"
	case InEscape:
		return "InEscape"
	default:
		return "Unknown"
	}
}

// ASCIIConfig selects the marker bytes of an ASCII-delimited link
type ASCIIConfig struct {
	Start        byte
	Stop         byte
	Escape       byte
	EscXor       byte
	MaxFrameSize int // largest unescaped frame body accepted
}

// DefaultASCIIConfig returns STX/ETX/DLE framing sized for any space packet
func DefaultASCIIConfig() ASCIIConfig {
	return ASCIIConfig{
		Start:        DefaultStart,
		Stop:         DefaultStop,
		Escape:       DefaultEscape,
		EscXor:       DefaultEscXor,
		MaxFrameSize: ccsds.MaxPacketSize,
	}
}

// Validate checks that markers are distinct and that no escaped marker
// collides with another marker
func (c ASCIIConfig) Validate() error {
	if c.Start == c.Stop || c.Start == c.Escape || c.Stop == c.Escape {
		return fmt.Errorf("marker bytes must differ (start 0x%02X, stop 0x%02X, escape 0x%02X)", c.Start, c.Stop, c.Escape)
	}
	if c.EscXor == 0 {
		return errors.New("escape xor must be nonzero")
	}
	for _, m := range []byte{c.Start, c.Stop, c.Escape} {
		if c.isMarker(m ^ c.EscXor) {
			return fmt.Errorf("escaped marker 0x%02X collides with a marker", m^c.EscXor)
		}
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("invalid max frame size: %d", c.MaxFrameSize)
	}
	return nil
}

func (c ASCIIConfig) isMarker(b byte) bool {
	return b == c.Start || b == c.Stop || b == c.Escape
}

// ASCII delimits frames with start and stop markers. Marker bytes inside a
// frame are sent as Escape followed by the byte XOR EscXor.
type ASCII struct {
	cfg   ASCIIConfig
	state ParseState
	buf   []byte
}

// NewASCII creates an ASCII-delimited framer
func NewASCII(cfg ASCIIConfig) (*ASCII, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ASCII{cfg: cfg, state: AwaitingStart}, nil
}

// Config returns the marker configuration
func (a *ASCII) Config() ASCIIConfig {
	return a.cfg
}

// State returns the current parse state
func (a *ASCII) State() ParseState {
	return a.state
}

// Reset drops any partial frame and waits for the next start marker
func (a *ASCII) Reset() {
	a.state = AwaitingStart
	a.buf = a.buf[:0]
}

// Feed runs data through the parser state machine.
//
// An unescaped start marker inside a frame discards the partial frame and
// opens a new one. A frame growing past MaxFrameSize is dropped and the
// parser waits for the next start marker.
func (a *ASCII) Feed(data []byte) ([][]byte, error) {
	var frames [][]byte
	var errs []error

	for _, b := range data {
		switch a.state {
		case AwaitingStart:
			if b == a.cfg.Start {
				a.buf = a.buf[:0]
				a.state = InFrame
			}

		case InFrame:
			switch b {
			case a.cfg.Start:
				errs = append(errs, fmt.Errorf("%w: start marker inside frame, dropped %d bytes", ErrFraming, len(a.buf)))
				a.buf = a.buf[:0]
			case a.cfg.Stop:
				if len(a.buf) > 0 {
					frames = append(frames, append([]byte(nil), a.buf...))
				}
				a.Reset()
			case a.cfg.Escape:
				a.state = InEscape
			default:
				if err := a.appendByte(b); err != nil {
					errs = append(errs, err)
				}
			}

		case InEscape:
			switch {
			case b == a.cfg.Start:
				errs = append(errs, fmt.Errorf("%w: start marker after escape, dropped %d bytes", ErrFraming, len(a.buf)))
				a.buf = a.buf[:0]
				a.state = InFrame
			case b == a.cfg.Stop:
				errs = append(errs, fmt.Errorf("%w: stop marker after escape, dropped %d bytes", ErrFraming, len(a.buf)))
				a.Reset()
			case !a.cfg.isMarker(b ^ a.cfg.EscXor):
				errs = append(errs, fmt.Errorf("%w: invalid escape sequence 0x%02X 0x%02X", ErrFraming, a.cfg.Escape, b))
				a.Reset()
			default:
				a.state = InFrame
				if err := a.appendByte(b ^ a.cfg.EscXor); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	return frames, errors.Join(errs...)
}

func (a *ASCII) appendByte(b byte) error {
	if len(a.buf) >= a.cfg.MaxFrameSize {
		n := len(a.buf)
		a.Reset()
		return fmt.Errorf("%w: unterminated frame exceeds %d bytes (dropped %d)", ErrFraming, a.cfg.MaxFrameSize, n+1)
	}
	a.buf = append(a.buf, b)
	return nil
}

// Flush signals end of stream. A dangling escape or an unterminated frame is
// reported and dropped.
func (a *ASCII) Flush() error {
	defer a.Reset()
	switch a.state {
	case InEscape:
		return fmt.Errorf("%w: escape byte at end of stream", ErrFraming)
	case InFrame:
		return fmt.Errorf("%w: unterminated frame of %d bytes at end of stream", ErrFraming, len(a.buf))
	}
	return nil
}

// Frame escapes payload and wraps it in start and stop markers
func (a *ASCII) Frame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrFraming)
	}
	if len(payload) > a.cfg.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d byte packet exceeds %d byte limit", ErrFraming, len(payload), a.cfg.MaxFrameSize)
	}

	out := make([]byte, 0, len(payload)*2+2)
	out = append(out, a.cfg.Start)
	for _, b := range payload {
		if a.cfg.isMarker(b) {
			out = append(out, a.cfg.Escape, b^a.cfg.EscXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, a.cfg.Stop), nil
}
