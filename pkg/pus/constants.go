// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pus implements ECSS-E-70-41 Packet Utilisation Standard packets
// carried as CCSDS Space Packets.
//
// A PUS packet is a space packet with the secondary header flag set, a PUS
// data field header, application data and a CRC-16/CCITT-FALSE packet error
// control trailer. Both PUS-A and PUS-C header layouts are supported; the
// layout is detected from the version field when decoding.
package pus

import "errors"

// Version identifies the PUS secondary header layout
type Version uint8

// PUS versions
const (
	VersionA Version = 1 // ECSS-E-70-41A
	VersionC Version = 2 // ECSS-E-ST-70-41C
)

func (v Version) String() string {
	switch v {
	case VersionA:
		return "PUS-A"
	case VersionC:
		return "PUS-C"
	default:
		return "PUS-?"
	}
}

// Secondary header sizes
const (
	tcHeaderSizeC = 5
	tmHeaderSizeC = 7
	tcHeaderSizeA = 4
	tmHeaderSizeA = 4
	CRCSize       = 2
)

// CRC-16/CCITT-FALSE configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// AckFlags selects which verification reports a telecommand requests
type AckFlags uint8

// Acknowledgement flag bits
const (
	AckAcceptance AckFlags = 0b0001
	AckStart      AckFlags = 0b0010
	AckProgress   AckFlags = 0b0100
	AckCompletion AckFlags = 0b1000

	AckNone AckFlags = 0
	AckAll  AckFlags = AckAcceptance | AckStart | AckProgress | AckCompletion
)

// Has reports whether every flag in f is set
func (a AckFlags) Has(f AckFlags) bool {
	return a&f == f
}

func (a AckFlags) String() string {
	if a == AckNone {
		return "----"
	}
	b := []byte("----")
	if a.Has(AckAcceptance) {
		b[0] = 'A'
	}
	if a.Has(AckStart) {
		b[1] = 'S'
	}
	if a.Has(AckProgress) {
		b[2] = 'P'
	}
	if a.Has(AckCompletion) {
		b[3] = 'C'
	}
	return string(b)
}

// Standard services
const (
	ServiceVerification = 1
	ServiceHousekeeping = 3
	ServiceEvent        = 5
	ServiceMemory       = 6
	ServiceFunction     = 8
	ServiceTime         = 9
	ServiceScheduling   = 11
	ServiceTest         = 17
	ServiceParameters   = 20
	ServiceFiles        = 23
)

// Service 1 - request verification subservices
const (
	SubAcceptanceSuccess = 1
	SubAcceptanceFailure = 2
	SubStartSuccess      = 3
	SubStartFailure      = 4
	SubProgressSuccess   = 5
	SubProgressFailure   = 6
	SubCompletionSuccess = 7
	SubCompletionFailure = 8
)

// Service 5 - event reporting subservices
const (
	SubEventInfo           = 1
	SubEventLowSeverity    = 2
	SubEventMediumSeverity = 3
	SubEventHighSeverity   = 4
	SubEventEnable         = 5
	SubEventDisable        = 6
)

// Service 17 - test subservices
const (
	SubPing         = 1
	SubPingReply    = 2
	SubTriggerEvent = 128
)

// Decode and encode failures
var (
	ErrChecksum           = errors.New("CRC mismatch")
	ErrUnsupportedVersion = errors.New("unsupported PUS version")
	ErrServiceField       = errors.New("missing PUS service fields")
	ErrFieldRange         = errors.New("PUS field out of range")
	ErrWrongService       = errors.New("unexpected PUS service")
	ErrPayloadLength      = errors.New("PUS application data too short")
)
