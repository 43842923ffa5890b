// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	stamp := p.Received
	if stamp.IsZero() {
		stamp = time.Now()
	}

	result := fmt.Sprintf("[%s] %s[%d,%d] %s apid=0x%03X seq=%d len=%d\n",
		stamp.Format("15:04:05.000"), p.Type(), p.Header.Service, p.Header.Subservice,
		FormatSubservice(p.Header.Service, p.Header.Subservice),
		p.APID(), p.SequenceCount(), p.Primary.PacketSize())

	return result + FormatData(p)
}

// FormatData formats the application data based on service type
func FormatData(p *Packet) string {
	switch p.Header.Service {
	case ServiceVerification:
		r, err := ParseVerificationReport(p)
		if err != nil {
			return fmt.Sprintf("  (invalid report: %v)\n", err)
		}
		result := fmt.Sprintf("  Request: apid=0x%03X seq=%d", r.APID(), r.SequenceCount())
		if r.IsProgress() {
			result += fmt.Sprintf(", Step: %d", r.Step)
		}
		if !r.Success() {
			result += fmt.Sprintf(", Error Code: %d", r.ErrorCode)
			if len(r.FailureData) > 0 {
				result += fmt.Sprintf(", Data: %s", hex.EncodeToString(r.FailureData))
			}
		}
		return result + "\n"

	case ServiceEvent:
		if p.Header.Subservice > SubEventHighSeverity {
			break
		}
		e, err := ParseEvent(p)
		if err != nil {
			return fmt.Sprintf("  (invalid event: %v)\n", err)
		}
		return fmt.Sprintf("  Event 0x%04X from 0x%08X: p1=%d p2=%d\n",
			e.ID, e.ReporterID, e.Param1, e.Param2)
	}

	if p.Header.Time != nil {
		if len(p.Data) == 0 {
			return fmt.Sprintf("  Time: %s, (no data)\n", p.Header.Time)
		}
		return fmt.Sprintf("  Time: %s, Data: %s\n", p.Header.Time, formatHex(p.Data))
	}
	if len(p.Data) == 0 {
		return "  (no data)\n"
	}
	return fmt.Sprintf("  Data: %s\n", formatHex(p.Data))
}

func formatHex(b []byte) string {
	const limit = 32
	if len(b) <= limit {
		return strings.ToUpper(hex.EncodeToString(b))
	}
	return fmt.Sprintf("%s... (%d bytes)", strings.ToUpper(hex.EncodeToString(b[:limit])), len(b))
}

// FormatService returns the human-readable name for a service type
func FormatService(service uint8) string {
	switch service {
	case ServiceVerification:
		return "REQUEST_VERIFICATION"
	case ServiceHousekeeping:
		return "HOUSEKEEPING"
	case ServiceEvent:
		return "EVENT_REPORTING"
	case ServiceMemory:
		return "MEMORY_MANAGEMENT"
	case ServiceFunction:
		return "FUNCTION_MANAGEMENT"
	case ServiceTime:
		return "TIME_MANAGEMENT"
	case ServiceScheduling:
		return "TIME_BASED_SCHEDULING"
	case ServiceTest:
		return "TEST"
	case ServiceParameters:
		return "PARAMETER_MANAGEMENT"
	case ServiceFiles:
		return "FILE_MANAGEMENT"
	default:
		return "UNKNOWN"
	}
}

// FormatSubservice returns the human-readable name for a message subtype
func FormatSubservice(service, subservice uint8) string {
	switch service {
	case ServiceVerification:
		names := []string{"", "ACCEPTANCE_SUCCESS", "ACCEPTANCE_FAILURE", "START_SUCCESS", "START_FAILURE",
			"PROGRESS_SUCCESS", "PROGRESS_FAILURE", "COMPLETION_SUCCESS", "COMPLETION_FAILURE"}
		if subservice > 0 && int(subservice) < len(names) {
			return names[subservice]
		}

	case ServiceEvent:
		names := []string{"", "EVENT_INFO", "EVENT_LOW", "EVENT_MEDIUM", "EVENT_HIGH",
			"ENABLE_EVENTS", "DISABLE_EVENTS"}
		if subservice > 0 && int(subservice) < len(names) {
			return names[subservice]
		}

	case ServiceTest:
		switch subservice {
		case SubPing:
			return "PING"
		case SubPingReply:
			return "PING_REPLY"
		case SubTriggerEvent:
			return "TRIGGER_EVENT"
		}
	}
	return fmt.Sprintf("%s_%d", FormatService(service), subservice)
}
