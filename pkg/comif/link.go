// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comif

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/parhelion/pkg/framing"
)

const (
	streamReadSize   = 4096
	datagramReadSize = 65536 + 64
)

// DialFunc connects a byte transport
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// FramerFunc creates a fresh framer for each connection. A nil FramerFunc
// treats every Read as exactly one frame, as datagram sockets deliver them.
type FramerFunc func() framing.Framer

type item struct {
	frame []byte
	err   error
}

// connection is the state of one Open..Close cycle
type connection struct {
	rw    io.ReadWriteCloser
	queue chan item
	done  chan struct{}
	err   error // read error, valid once done is closed
}

// Link is the generic backend shared by every byte transport: a dialer, a
// framer and a reader goroutine feeding a bounded queue.
type Link struct {
	id        string
	dial      DialFunc
	newFramer FramerFunc
	trim      func([]byte) []byte
	readSize  int
	ignore    func(error) bool
	opts      options

	mu   sync.Mutex
	conn *connection
	tx   framing.Framer

	writeMu sync.Mutex
}

// NewLink creates a backend over any transport dial can produce
func NewLink(id string, dial DialFunc, newFramer FramerFunc, opts ...Option) *Link {
	l := &Link{
		id:        id,
		dial:      dial,
		newFramer: newFramer,
		readSize:  streamReadSize,
		opts:      buildOptions(opts),
	}
	if newFramer == nil {
		l.readSize = datagramReadSize
	}
	return l
}

// ID describes the endpoint
func (l *Link) ID() string {
	return l.id
}

// Open dials the transport and starts the reader
func (l *Link) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	rw, err := l.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrIO, l.id, err)
	}

	c := &connection{
		rw:    rw,
		queue: make(chan item, l.opts.queueSize),
		done:  make(chan struct{}),
	}
	var rx framing.Framer
	if l.newFramer != nil {
		rx = l.newFramer()
		l.tx = l.newFramer()
	}
	l.conn = c
	go l.readLoop(c, rx)

	l.opts.logger.Printf("%s: opened", l.id)
	return nil
}

// Close stops the reader and releases the transport
func (l *Link) Close() error {
	l.mu.Lock()
	c := l.conn
	l.conn = nil
	l.mu.Unlock()

	if c == nil {
		return nil
	}

	err := c.rw.Close()
	select {
	case <-c.done:
	case <-time.After(closeTimeout):
		l.opts.logger.Printf("%s: reader did not stop within %v", l.id, closeTimeout)
	}
	l.opts.logger.Printf("%s: closed", l.id)
	if err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", ErrIO, l.id, err)
	}
	return nil
}

// IsOpen reports whether the transport is connected and its reader alive
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()

	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send frames packet and writes it in one call
func (l *Link) Send(packet []byte) error {
	l.mu.Lock()
	c := l.conn
	tx := l.tx
	l.mu.Unlock()

	if c == nil {
		return fmt.Errorf("%w: %s", ErrTransportClosed, l.id)
	}

	frame := packet
	if tx != nil {
		var err error
		if frame, err = tx.Frame(packet); err != nil {
			return err
		}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if d, ok := c.rw.(interface{ SetWriteDeadline(time.Time) error }); ok && l.opts.writeTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(l.opts.writeTimeout))
	}
	if _, err := c.rw.Write(frame); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrIO, l.id, err)
	}
	return nil
}

// TryReceive returns the next queued frame without blocking
func (l *Link) TryReceive() ([]byte, error) {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()

	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransportClosed, l.id)
	}

	if it, ok := tryPop(c.queue); ok {
		return it.frame, it.err
	}
	select {
	case <-c.done:
		// The reader may have queued frames right before exiting
		if it, ok := tryPop(c.queue); ok {
			return it.frame, it.err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, l.id, c.err)
	default:
		return nil, nil
	}
}

func tryPop(q chan item) (item, bool) {
	select {
	case it := <-q:
		return it, true
	default:
		return item{}, false
	}
}

func (l *Link) readLoop(c *connection, rx framing.Framer) {
	defer close(c.done)

	buf := make([]byte, l.readSize)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			l.dispatch(c, rx, buf[:n])
		}
		if err != nil {
			if l.ignore != nil && l.ignore(err) {
				continue
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			l.flush(c, rx)
			c.err = err
			return
		}
	}
}

// flush reports a frame left incomplete when the stream ended
func (l *Link) flush(c *connection, rx framing.Framer) {
	f, ok := rx.(interface{ Flush() error })
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		l.opts.logger.Printf("%s: %v", l.id, err)
		l.push(c.queue, item{err: err})
	}
}

func (l *Link) dispatch(c *connection, rx framing.Framer, data []byte) {
	if rx == nil {
		l.push(c.queue, item{frame: append([]byte(nil), data...)})
		return
	}

	frames, err := rx.Feed(data)
	for _, f := range frames {
		if l.trim != nil {
			f = l.trim(f)
		}
		l.push(c.queue, item{frame: f})
	}
	if err != nil {
		l.opts.logger.Printf("%s: %v", l.id, err)
		l.push(c.queue, item{err: err})
	}
}

// push queues it, discarding the oldest entry while the queue is full
func (l *Link) push(q chan item, it item) {
	for {
		select {
		case q <- it:
			return
		default:
		}
		select {
		case <-q:
			l.opts.logger.Printf("%s: receive queue full, dropped oldest frame", l.id)
		default:
		}
	}
}
