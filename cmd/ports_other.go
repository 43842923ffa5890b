// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package cmd

import (
	"go.bug.st/serial"
)

func listSerialPorts() ([]serialPort, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]serialPort, 0, len(names))
	for _, name := range names {
		ports = append(ports, serialPort{Path: name})
	}
	return ports, nil
}
