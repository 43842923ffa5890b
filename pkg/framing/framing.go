// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package framing splits continuous byte streams into discrete packet frames
// and wraps outbound packets for the wire.
//
// Every Framer is a stateful, restartable producer: each Feed call advances
// the parser and yields zero or more complete frames. Errors never stop a
// Feed call; the framer resynchronises and keeps going, returning the
// collected errors alongside whatever frames were recovered.
package framing

import "errors"

// ErrFraming reports a malformed, oversized or truncated frame
var ErrFraming = errors.New("framing error")

// Framer converts between a byte stream and discrete frames
type Framer interface {
	// Feed consumes stream bytes and returns every frame completed by them
	Feed(data []byte) ([][]byte, error)
	// Reset drops any partial frame
	Reset()
	// Frame wraps a packet for transmission
	Frame(payload []byte) ([]byte, error)
}

// FeedAll feeds each chunk to f in order and collects every frame and error
func FeedAll(f Framer, chunks ...[]byte) ([][]byte, error) {
	var frames [][]byte
	var errs []error
	for _, c := range chunks {
		out, err := f.Feed(c)
		frames = append(frames, out...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return frames, errors.Join(errs...)
}
