// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/record"
)

var (
	replayStats bool
	replayRX    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a capture file",
	Long: `Decode every frame of a capture written with --capture.

Each frame is printed with its offset from the start of the capture and its
direction. Frames that do not decode are shown as hex with the decode error.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print statistics for received frames")
	replayCmd.Flags().BoolVar(&replayRX, "rx-only", false, "Only show received frames")
}

func runReplay(cmd *cobra.Command, args []string) error {
	header, records, err := record.ReadFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Parhelion - Replay\n")
	fmt.Printf("Capture: %s\n", args[0])
	fmt.Printf("Interface: %s\n", header.Interface)
	fmt.Printf("Started: %s\n", header.StartTime().Format("2006-01-02 15:04:05.000"))
	fmt.Printf("Frames: %d\n\n", len(records))

	stats := pus.NewStatistics()
	start := header.StartTime()

	for _, rec := range records {
		if replayRX && rec.Direction != record.RX {
			continue
		}
		offset := rec.Time.Sub(start).Seconds()

		p, err := pus.Decode(rec.Frame)
		if rec.Direction == record.RX {
			var verrs []pus.ValidationError
			if err == nil {
				verrs = pus.ValidatePacket(p)
			}
			stats.Update(p, err, verrs)
		}

		if err != nil {
			fmt.Printf("%+10.3fs %s \033[1;31mDECODE ERROR:\033[0m %v\n", offset, rec.Direction, err)
			fmt.Printf("  Raw: % X\n\n", rec.Frame)
			continue
		}
		fmt.Printf("%+10.3fs %s ", offset, rec.Direction)
		fmt.Print(pus.FormatPacket(p))
		fmt.Println()
	}

	if replayStats {
		fmt.Print(stats.String())
	}
	return nil
}
