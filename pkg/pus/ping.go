// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

// PingAck is the acknowledgement set requested by NewPing
const PingAck = AckAcceptance | AckCompletion

// NewPing creates a service 17 connection test telecommand
func NewPing(apid, seqCount, sourceID uint16) *Packet {
	return NewTelecommand(apid, seqCount, ServiceTest, SubPing, PingAck, sourceID, nil)
}

// NewPingReply creates the service 17 connection test report
func NewPingReply(apid, seqCount, destID uint16) *Packet {
	return NewTelemetry(apid, seqCount, ServiceTest, SubPingReply, destID, nil)
}

// IsPingReply reports whether p answers a connection test
func IsPingReply(p *Packet) bool {
	return !p.IsTelecommand() && p.Is(ServiceTest, SubPingReply)
}
