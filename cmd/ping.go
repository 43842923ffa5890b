// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/internal/config"
	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending service 17 connection tests",
	Long: `Send TC(17,1) connection tests and wait for the target to verify them.

Each ping requests acceptance and completion reports. A ping succeeds when the
completion report arrives; the TM(17,2) reply is shown when the target sends
one.

This is useful for verifying:
  - The transport is connected and framing matches the target
  - The target decodes telecommands addressed to the APID
  - Verification reports find their way back

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	st, err := openStation(cmd, func(cfg *config.Config) {
		cfg.Timing.CommandTimeoutSec = pingTimeout
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer st.Close()

	fmt.Printf("Parhelion - Ping\n")
	fmt.Printf("Connection: %s\n", st.Info())
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		seq, err := st.session.Submit(pus.ServiceTest, pus.SubPing, nil, pus.PingAck)
		if err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			if !st.iface.IsOpen() {
				break
			}
			continue
		}

		replied := false
		stage, err := st.waitFor(cmd.Context(), st.cfg.APID, seq, func(ev session.Event) {
			if ev.Kind == session.EventTelemetry && pus.IsPingReply(ev.Packet) {
				replied = true
			}
		})
		rtt := time.Since(startTime)

		switch {
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
		case stage.State == session.StateCompleted:
			reply := ""
			if replied {
				reply = ", reply TM(17,2)"
			}
			fmt.Printf("COMPLETED seq=%d%s, rtt=%v\n", seq, reply, rtt.Round(time.Millisecond))
			successCount++
		case errors.Is(stage.Err(), session.ErrTimeout):
			fmt.Printf("TIMEOUT (no report in %ds, last %s)\n", pingTimeout, stage.Phase)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", stage.Err())
			failCount++
		}

		if err != nil && !st.iface.IsOpen() {
			break
		}
		if cmd.Context().Err() != nil {
			break
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	if sent > 0 {
		fmt.Printf("%d pings sent, %d completed, %.0f%% failed\n",
			sent, successCount, float64(failCount)/float64(sent)*100)
	}

	if failCount > 0 || sent < pingCount {
		st.Close()
		os.Exit(1)
	}
	return nil
}
