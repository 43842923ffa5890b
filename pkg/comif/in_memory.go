// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comif

import (
	"context"
	"io"
	"sync"
	"time"
)

// InMemory is a loopback byte device for exercising backends without a
// transport. Bytes passed to PrepareRead are returned by Read; bytes written
// are collected for Written.
type InMemory struct {
	readBuffer  []byte
	writeBuffer []byte
	readLock    sync.RWMutex
	writeLock   sync.RWMutex
	writeSignal chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	writeErr    error
}

// NewInMemory creates an empty device
func NewInMemory() *InMemory {
	return &InMemory{
		writeSignal: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

// Dial returns a DialFunc handing out this device
func (rw *InMemory) Dial() DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return rw, nil
	}
}

// Close makes pending and future reads return io.EOF
func (rw *InMemory) Close() error {
	rw.closeOnce.Do(func() { close(rw.closed) })
	return nil
}

// Read blocks until data is prepared or the device is closed
func (rw *InMemory) Read(p []byte) (int, error) {
	for {
		rw.readLock.RLock()
		n := len(rw.readBuffer)
		rw.readLock.RUnlock()
		if n > 0 {
			break
		}
		select {
		case <-rw.closed:
			return 0, io.EOF
		case <-time.After(time.Millisecond):
		}
	}

	rw.readLock.Lock()
	defer rw.readLock.Unlock()
	n := copy(p, rw.readBuffer)
	rw.readBuffer = rw.readBuffer[n:]
	return n, nil
}

// PrepareRead queues bytes for Read
func (rw *InMemory) PrepareRead(p []byte) {
	rw.readLock.Lock()
	defer rw.readLock.Unlock()
	rw.readBuffer = append(rw.readBuffer, p...)
}

// IsReadEmpty reports whether every prepared byte has been read
func (rw *InMemory) IsReadEmpty() bool {
	rw.readLock.RLock()
	defer rw.readLock.RUnlock()
	return len(rw.readBuffer) == 0
}

// FailWrites makes every following Write return err
func (rw *InMemory) FailWrites(err error) {
	rw.writeLock.Lock()
	defer rw.writeLock.Unlock()
	rw.writeErr = err
}

// Write collects p
func (rw *InMemory) Write(p []byte) (int, error) {
	rw.writeLock.Lock()
	defer rw.writeLock.Unlock()

	if rw.writeErr != nil {
		return 0, rw.writeErr
	}
	rw.writeBuffer = append(rw.writeBuffer, p...)
	select {
	case rw.writeSignal <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Written returns a copy of everything written so far
func (rw *InMemory) Written() []byte {
	rw.writeLock.RLock()
	defer rw.writeLock.RUnlock()
	return append([]byte(nil), rw.writeBuffer...)
}

// ClearWrite discards collected writes
func (rw *InMemory) ClearWrite() {
	rw.writeLock.Lock()
	defer rw.writeLock.Unlock()
	rw.writeBuffer = nil
}

// WaitUntilWritten blocks until the next Write or timeout
func (rw *InMemory) WaitUntilWritten(timeout time.Duration) bool {
	select {
	case <-rw.writeSignal:
		return true
	case <-time.After(timeout):
		return false
	}
}
