// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package record reads and writes capture files of the frames exchanged with
// a target.
//
// A capture is a sequence of CBOR items: one header [magic, version, start
// time, interface] followed by one [direction, time, frame] array per frame.
// Times are Unix nanoseconds.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	magic         = "parhelion-capture"
	formatVersion = 1
)

// ErrFormat is returned for input that is not a capture file
var ErrFormat = errors.New("invalid capture file")

// Direction tells whether a frame was sent or received
type Direction uint8

const (
	TX Direction = 1
	RX Direction = 2
)

func (d Direction) String() string {
	switch d {
	case TX:
		return "TX"
	case RX:
		return "RX"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Header describes a capture
type Header struct {
	_         struct{} `cbor:",toarray"`
	Magic     string
	Version   uint
	Started   int64
	Interface string
}

// StartTime returns when the capture was created
func (h Header) StartTime() time.Time {
	return time.Unix(0, h.Started)
}

// Record is one captured frame
type Record struct {
	Direction Direction
	Time      time.Time
	Frame     []byte
}

type entry struct {
	_     struct{} `cbor:",toarray"`
	Dir   uint8
	Nanos int64
	Frame []byte
}

// Writer appends frames to a capture. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	now    func() time.Time
}

// Create truncates path and writes a capture header naming the interface
func Create(path, iface string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}
	w, err := NewWriter(f, iface)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes a capture header to w
func NewWriter(w io.Writer, iface string) (*Writer, error) {
	cw := &Writer{enc: cbor.NewEncoder(w), now: time.Now}
	h := Header{Magic: magic, Version: formatVersion, Started: cw.now().UnixNano(), Interface: iface}
	if err := cw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return cw, nil
}

// Write appends one frame
func (w *Writer) Write(dir Direction, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return fmt.Errorf("capture closed")
	}
	if err := w.enc.Encode(entry{Dir: uint8(dir), Nanos: w.now().UnixNano(), Frame: frame}); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	return nil
}

// RecordTX appends a sent frame
func (w *Writer) RecordTX(frame []byte) error {
	return w.Write(TX, frame)
}

// RecordRX appends a received frame
func (w *Writer) RecordRX(frame []byte) error {
	return w.Write(RX, frame)
}

// Close stops the writer and closes the file opened by Create
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.enc = nil
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

// Reader iterates over a capture
type Reader struct {
	dec    *cbor.Decoder
	Header Header
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	cr := &Reader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.Header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty", ErrFormat)
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if cr.Header.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, cr.Header.Magic)
	}
	if cr.Header.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, cr.Header.Version)
	}
	return cr, nil
}

// Next returns the next frame, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var e entry
	if err := r.dec.Decode(&e); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	dir := Direction(e.Dir)
	if dir != TX && dir != RX {
		return Record{}, fmt.Errorf("%w: unknown direction %d", ErrFormat, e.Dir)
	}
	return Record{Direction: dir, Time: time.Unix(0, e.Nanos), Frame: e.Frame}, nil
}

// ReadFile loads a whole capture
func ReadFile(path string) (Header, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return Header{}, nil, err
	}
	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return r.Header, records, nil
		}
		if err != nil {
			return r.Header, records, err
		}
		records = append(records, rec)
	}
}
