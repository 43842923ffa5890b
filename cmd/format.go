// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

// printEvent prints a session event. Telemetry is only shown with showTM.
func printEvent(ev session.Event, showTM bool) {
	timestamp := ev.Time.Format("15:04:05.000")

	switch ev.Kind {
	case session.EventAnomaly:
		fmt.Printf("[%s] \033[1;31mANOMALY:\033[0m %v\n", timestamp, ev.Err)
		switch {
		case ev.Packet != nil:
			fmt.Print(indent(pus.FormatPacket(ev.Packet)))
		case len(ev.Raw) > 0:
			fmt.Printf("  Raw: % X\n", ev.Raw)
		}
		fmt.Println()

	case session.EventTimeout:
		fmt.Printf("[%s] \033[1;31mTIMEOUT:\033[0m %s\n\n", timestamp, ev.Command)

	case session.EventVerification:
		color := "1;32"
		if !ev.Report.Success() {
			color = "1;31"
		}
		label := strings.ToUpper(pus.FormatSubservice(pus.ServiceVerification, ev.Report.Subservice))
		fmt.Printf("[%s] \033[%sm%s:\033[0m %s", timestamp, color, label, ev.Command)
		if !ev.Applied {
			fmt.Printf(" \033[33m(duplicate)\033[0m")
		}
		fmt.Printf("\n\n")

	case session.EventTelemetry:
		if showTM {
			fmt.Print(pus.FormatPacket(ev.Packet))
			fmt.Println()
		}
	}
}

// summarizeEvent renders an event on one line
func summarizeEvent(ev session.Event) string {
	switch ev.Kind {
	case session.EventAnomaly:
		return fmt.Sprintf("ANOMALY: %v", ev.Err)
	case session.EventTimeout:
		return fmt.Sprintf("TIMEOUT: %s", ev.Command)
	case session.EventVerification:
		s := fmt.Sprintf("%s: %s", pus.FormatSubservice(pus.ServiceVerification, ev.Report.Subservice), ev.Command)
		if !ev.Applied {
			s += " (duplicate)"
		}
		return s
	default:
		p := ev.Packet
		return fmt.Sprintf("%s[%d,%d] %s apid=0x%03X seq=%d",
			p.Type(), p.Service(), p.Subservice(),
			pus.FormatSubservice(p.Service(), p.Subservice()), p.APID(), p.SequenceCount())
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
