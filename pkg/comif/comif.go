// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package comif provides communication interfaces that move PUS packets
// between the ground tool and a target over arbitrary byte transports.
//
// Every backend owns one transport from Open to Close. Inbound bytes are read
// by a dedicated goroutine, split into frames and queued; TryReceive hands out
// one queued frame per call and never blocks, so a single polling loop can
// serve any mix of interfaces.
package comif

import (
	"context"
	"errors"
	"io"
	"log"
	"time"
)

// Transport failures. Framing anomalies are reported with framing.ErrFraming.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrIO              = errors.New("transport I/O error")
)

// Defaults
const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second
	closeTimeout        = 2 * time.Second
)

// Interface is the uniform send/receive surface of every backend
type Interface interface {
	// ID describes the endpoint, e.g. "tcp://127.0.0.1:7301"
	ID() string
	// Open connects the transport. Opening an open interface is a no-op.
	Open(ctx context.Context) error
	// Close releases the transport. Closing a closed interface is a no-op.
	Close() error
	// Send transmits one packet. Fails with ErrTransportClosed when not open
	// and ErrIO when the transport rejects the write. Never retries.
	Send(packet []byte) error
	// TryReceive returns the next queued packet, or nil with a nil error when
	// nothing is queued. Framing anomalies are returned as non-fatal errors;
	// a dead transport returns ErrIO.
	TryReceive() ([]byte, error)
	// IsOpen reports whether the transport is connected and its reader alive
	IsOpen() bool
}

// Option customizes a backend
type Option func(*options)

type options struct {
	queueSize    int
	logger       *log.Logger
	writeTimeout time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		queueSize:    DefaultQueueSize,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	return o
}

// WithQueueSize bounds the receive queue. When full, the oldest frame is
// dropped.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger sets the logger for connection and queue events
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWriteTimeout bounds each write on transports that support deadlines
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}
