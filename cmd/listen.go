// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/pkg/comif"
)

var (
	listenAnomaliesOnly bool
	listenStatsInterval int
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Display incoming telemetry and anomalies",
	Long: `Continuously decode and display PUS packets as they arrive.

Every decoded telemetry packet is printed along with anomalies: framing
errors, CRC mismatches, malformed packets and verification reports for unknown
commands. Use --anomalies-only to hide healthy telemetry.

Statistics are printed periodically and on exit.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenAnomaliesOnly, "anomalies-only", false, "Only show anomalies and timeouts")
	listenCmd.Flags().IntVar(&listenStatsInterval, "stats-interval", 10, "Statistics print interval in seconds (0 disables)")
}

func runListen(cmd *cobra.Command, args []string) error {
	st, err := openStation(cmd, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Parhelion - Listen\n")
	fmt.Printf("Connection: %s\n", st.Info())
	if st.capture != nil {
		fmt.Printf("Capture: %s\n", st.cfg.Capture.File)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := st.session.Stats()
	defer func() {
		fmt.Printf("\n%s", stats.String())
	}()

	poll := time.NewTicker(st.cfg.PollInterval())
	defer poll.Stop()

	var statsC <-chan time.Time
	if listenStatsInterval > 0 {
		statsTicker := time.NewTicker(time.Duration(listenStatsInterval) * time.Second)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-statsC:
			fmt.Printf("\n%s\n", stats.String())
		case <-poll.C:
			events, err := st.session.PollOnce()
			for _, ev := range events {
				printEvent(ev, !listenAnomaliesOnly)
			}
			if errors.Is(err, comif.ErrIO) || errors.Is(err, comif.ErrTransportClosed) {
				fmt.Printf("Connection closed: %v\n", err)
				return nil
			}
			if err != nil {
				st.log.Printf("poll: %v", err)
			}
		}
	}
}
