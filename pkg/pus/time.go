// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"time"
)

// CDS short time code layout
const (
	CDSTimeSize = 7
	cdsPField   = 0x40 // CDS, epoch 1958-01-01, 16 bit days, no sub-ms field
	msPerDay    = 86400000
)

var ccsdsEpoch = time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC)

// timeNow is swapped out by tests
var timeNow = time.Now

// CDSTime is a CCSDS Day Segmented short time code
type CDSTime struct {
	Days        uint16 // days since 1958-01-01
	MillisOfDay uint32
}

// NewCDSTime converts t to CDS short format, truncating to milliseconds
func NewCDSTime(t time.Time) CDSTime {
	ms := t.UTC().Sub(ccsdsEpoch).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return CDSTime{
		Days:        uint16(ms / msPerDay),
		MillisOfDay: uint32(ms % msPerDay),
	}
}

// Time returns the UTC instant the time code represents
func (c CDSTime) Time() time.Time {
	return ccsdsEpoch.
		AddDate(0, 0, int(c.Days)).
		Add(time.Duration(c.MillisOfDay) * time.Millisecond)
}

func (c CDSTime) String() string {
	return c.Time().Format("2006-01-02 15:04:05.000")
}

func (c CDSTime) marshalTo(b []byte) {
	b[0] = cdsPField
	binary.BigEndian.PutUint16(b[1:3], c.Days)
	binary.BigEndian.PutUint32(b[3:7], c.MillisOfDay)
}

func parseCDSTime(b []byte) CDSTime {
	return CDSTime{
		Days:        binary.BigEndian.Uint16(b[1:3]),
		MillisOfDay: binary.BigEndian.Uint32(b[3:7]),
	}
}
