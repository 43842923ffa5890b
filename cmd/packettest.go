// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid PUS packet",
	Long: `Wait for a valid PUS packet on the connection until timeout.

This command opens the configured transport and waits for any packet that
passes framing, the CRC check and validation. Anomalies are counted and
skipped.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	st, err := openStation(cmd, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer st.Close()

	fmt.Printf("Parhelion - Packet Test\n")
	fmt.Printf("Connection: %s\n", st.Info())
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid PUS packet...\n\n")

	deadline := time.After(time.Duration(packetTestTimeout) * time.Second)
	ticker := time.NewTicker(st.cfg.PollInterval())
	defer ticker.Stop()

	anomalies := 0
	for {
		select {
		case <-cmd.Context().Done():
			st.Close()
			os.Exit(1)

		case <-deadline:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
			st.Close()
			os.Exit(1)

		case <-ticker.C:
			events, err := st.session.PollOnce()
			for _, ev := range events {
				if ev.Kind == session.EventAnomaly {
					anomalies++
					continue
				}
				if ev.Packet == nil {
					continue
				}
				if anomalies > 0 {
					fmt.Printf("(skipped %d anomalies before sync)\n", anomalies)
				}
				p := ev.Packet
				fmt.Printf("SUCCESS: Received valid packet\n")
				fmt.Printf("  Type: %s[%d,%d] %s\n", p.Type(), p.Service(), p.Subservice(),
					pus.FormatSubservice(p.Service(), p.Subservice()))
				fmt.Printf("  APID: 0x%03X\n", p.APID())
				fmt.Printf("  Sequence: %d\n", p.SequenceCount())
				fmt.Printf("  Data: %d bytes\n", len(p.Data))
				st.Close()
				os.Exit(0)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
				st.Close()
				os.Exit(2)
			}
		}
	}
}
