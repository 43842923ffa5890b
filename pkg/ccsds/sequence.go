// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ccsds

import "sync"

// SequenceCounter hands out source sequence counts per APID, wrapping modulo 2^14
type SequenceCounter struct {
	mu     sync.Mutex
	counts map[uint16]uint16
}

// NewSequenceCounter creates a counter with every APID starting at zero
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{counts: make(map[uint16]uint16)}
}

// Next returns the count to use for apid and advances it
func (c *SequenceCounter) Next(apid uint16) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.counts[apid]
	c.counts[apid] = (current + 1) % SequenceModulo
	return current
}

// Peek returns the count the next call to Next will hand out
func (c *SequenceCounter) Peek(apid uint16) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[apid]
}

// Set forces the next count for apid
func (c *SequenceCounter) Set(apid uint16, next uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[apid] = next % SequenceModulo
}

// Reset clears all APIDs back to zero
func (c *SequenceCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[uint16]uint16)
}

// SequenceDelta returns how far got is ahead of want, modulo 2^14. Zero means
// the expected packet arrived.
func SequenceDelta(want, got uint16) uint16 {
	return (got - want + SequenceModulo) % SequenceModulo
}
