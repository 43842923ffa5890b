// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

// Statistics tracks packet statistics and error rates
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets       uint64
	ValidPackets       uint64
	CRCErrors          uint64
	DecodeErrors       uint64
	FramingErrors      uint64
	MalformedPackets   uint64
	LengthMismatches   uint64
	UnknownSubservices uint64
	InvalidValues      uint64
	SequenceGaps       uint64
	LostPackets        uint64
	Telecommands       uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec

	lastSeq map[uint16]uint16
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		lastSeq:        make(map[uint16]uint16),
	}
}

// Update updates statistics based on a packet and its errors
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrChecksum) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if packet != nil && !packet.IsTelecommand() {
		s.trackSequence(packet.APID(), packet.SequenceCount())
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyLengthMismatch:
			s.LengthMismatches++
			s.MalformedPackets++
		case AnomalyUnknownSubservice:
			s.UnknownSubservices++
			s.MalformedPackets++
		case AnomalyInvalidValue:
			s.InvalidValues++
		case AnomalyUnexpectedDirection:
			s.Telecommands++
		}
	}
}

// AddFramingError counts a stream framing failure, which never yields a packet
func (s *Statistics) AddFramingError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramingErrors++
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) trackSequence(apid, seq uint16) {
	last, seen := s.lastSeq[apid]
	s.lastSeq[apid] = seq
	if !seen {
		return
	}
	delta := ccsds.SequenceDelta((last+1)%ccsds.SequenceModulo, seq)
	// Large deltas are a restarted source, not loss
	if delta != 0 && delta < ccsds.SequenceModulo/2 {
		s.SequenceGaps++
		s.LostPackets += uint64(delta)
	}
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.FramingErrors + s.MalformedPackets + s.InvalidValues
}

// Errors returns the number of packets or frames that failed to decode or validate
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount()
}

// Snapshot is a copy of the counters taken under the lock
type Snapshot struct {
	Elapsed      time.Duration
	TotalPackets uint64
	ValidPackets uint64
	Errors       uint64
	SequenceGaps uint64
	LostPackets  uint64
	PacketRate   float64
	ErrorRate    float64
}

// Snapshot recalculates the rates and returns the current counters
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	return Snapshot{
		Elapsed:      time.Since(s.StartTime),
		TotalPackets: s.TotalPackets,
		ValidPackets: s.ValidPackets,
		Errors:       s.errorCount(),
		SequenceGaps: s.SequenceGaps,
		LostPackets:  s.LostPackets,
		PacketRate:   s.PacketRate,
		ErrorRate:    s.ErrorRate,
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d (%.1f%%)\n", s.MalformedPackets, percent(s.MalformedPackets))
		if s.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthMismatches)
		}
		if s.UnknownSubservices > 0 {
			result += fmt.Sprintf("  Unknown Subtype:  %5d\n", s.UnknownSubservices)
		}
	}
	if s.InvalidValues > 0 {
		result += fmt.Sprintf("Invalid Values:  %8d (%.1f%%)\n", s.InvalidValues, percent(s.InvalidValues))
	}
	if s.Telecommands > 0 {
		result += fmt.Sprintf("Downlinked TCs:  %8d\n", s.Telecommands)
	}
	if s.SequenceGaps > 0 {
		result += fmt.Sprintf("Sequence Gaps:   %8d (%d lost)\n", s.SequenceGaps, s.LostPackets)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalPackets = 0
	s.ValidPackets = 0
	s.CRCErrors = 0
	s.DecodeErrors = 0
	s.FramingErrors = 0
	s.MalformedPackets = 0
	s.LengthMismatches = 0
	s.UnknownSubservices = 0
	s.InvalidValues = 0
	s.SequenceGaps = 0
	s.LostPackets = 0
	s.Telecommands = 0
	s.PacketRate = 0
	s.ErrorRate = 0
	s.lastSeq = make(map[uint16]uint16)
}
