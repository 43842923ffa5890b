// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comif

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"go.bug.st/serial"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
	"github.com/Thermoquad/parhelion/pkg/framing"
)

// openSerial opens a serial port in 8N1 mode
func openSerial(device string, baudRate int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", device, err)
	}
	return port, nil
}

// NewSerialFixed creates a serial backend exchanging fixed-size frames. The
// padding after each packet is stripped using the primary header length.
func NewSerialFixed(device string, baudRate, frameSize int, fill byte, opts ...Option) (*Link, error) {
	if _, err := framing.NewFixed(frameSize, fill); err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return openSerial(device, baudRate)
	}
	newFramer := func() framing.Framer {
		f, _ := framing.NewFixed(frameSize, fill)
		return f
	}
	l := NewLink(fmt.Sprintf("serial://%s@%d?framing=fixed&size=%d", device, baudRate, frameSize), dial, newFramer, opts...)
	l.trim = ccsds.TrimPadding
	return l, nil
}

// NewSerialASCII creates a serial backend with start/stop/escape framing
func NewSerialASCII(device string, baudRate int, cfg framing.ASCIIConfig, opts ...Option) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return openSerial(device, baudRate)
	}
	return NewLink(fmt.Sprintf("serial://%s@%d?framing=ascii", device, baudRate), dial, asciiFramer(cfg), opts...), nil
}

// NewVirtualSerial connects to the serial port of an emulator such as QEMU.
// path may be a unix socket, a pseudo terminal, or tcp://host:port for an
// emulator serial exposed over TCP. Frames use ASCII framing.
func NewVirtualSerial(path string, cfg framing.ASCIIConfig, opts ...Option) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		if addr, ok := strings.CutPrefix(path, "tcp://"); ok {
			return d.DialContext(ctx, "tcp", addr)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Mode()&os.ModeSocket != 0 {
			return d.DialContext(ctx, "unix", path)
		}
		// Pseudo terminals ignore the baud rate
		return openSerial(path, 115200)
	}
	return NewLink("virtual://"+strings.TrimPrefix(path, "tcp://"), dial, asciiFramer(cfg), opts...), nil
}

func asciiFramer(cfg framing.ASCIIConfig) FramerFunc {
	return func() framing.Framer {
		f, _ := framing.NewASCII(cfg)
		return f
	}
}
