// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package cmd

import (
	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

func listSerialPorts() ([]serialPort, error) {
	devices, err := serialdet.List()
	if err != nil {
		return nil, err
	}

	ports := make([]serialPort, 0, len(devices))
	for _, device := range devices {
		ports = append(ports, serialPort{Path: device.Path(), Description: device.Description()})
	}
	return ports, nil
}
