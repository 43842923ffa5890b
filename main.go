// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Parhelion - PUS Ground Tool
//
// A CLI tool for sending PUS telecommands, following their verification
// reports and decoding telemetry over CCSDS space packet links.

package main

import (
	"os"

	"github.com/Thermoquad/parhelion/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
