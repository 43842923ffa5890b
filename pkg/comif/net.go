// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comif

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/Thermoquad/parhelion/pkg/framing"
)

// NewTCP creates a TCP client carrying raw space packets. Packet boundaries
// are recovered from the primary header length field.
func NewTCP(addr string, opts ...Option) *Link {
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	newFramer := func() framing.Framer {
		return framing.NewSpacePacket(0)
	}
	return NewLink("tcp://"+addr, dial, newFramer, opts...)
}

// NewUDP creates a UDP client. Every datagram carries exactly one packet.
func NewUDP(addr string, opts ...Option) *Link {
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "udp", addr)
	}
	l := NewLink("udp://"+addr, dial, nil, opts...)
	// A connected UDP socket reports ICMP port unreachable on the next read;
	// the target may simply not be up yet
	l.ignore = func(err error) bool {
		return errors.Is(err, syscall.ECONNREFUSED)
	}
	return l
}
