// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

var (
	sendAck     string
	sendNoWait  bool
	sendShowAll bool
)

var sendCmd = &cobra.Command{
	Use:   "send SERVICE SUBSERVICE [HEXDATA]",
	Short: "Send a telecommand and follow its verification",
	Long: `Send a PUS telecommand to the target APID and print every verification
report until the command completes, fails or times out. The command is done
once the last report requested with --ack arrives.

Application data is given as hex (e.g. 0a0b0c or 0a:0b:0c).

Acknowledgement flags (--ack):
  all   - acceptance, start, progress and completion (default)
  none  - no reports; the command is done once sent
  asc   - any combination of a (acceptance), s (start), p (progress),
          c (completion)

Exit codes:
  0 - Command received its last requested report (or was sent, with
      --no-wait or --ack none)
  1 - Command failed or timed out
  2 - Connection error`,
	Example: `  parhelion send --tcp 127.0.0.1:7301 --apid 0x42 17 1
  parhelion send --dummy 3 5 --ack ac 01`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendAck, "ack", "all", "Requested verification reports: all, none or letters from 'aspc'")
	sendCmd.Flags().BoolVar(&sendNoWait, "no-wait", false, "Return after sending without waiting for reports")
	sendCmd.Flags().BoolVar(&sendShowAll, "show-all", false, "Also print telemetry received while waiting")
}

// parseAck parses the --ack flag
func parseAck(s string) (pus.AckFlags, error) {
	switch strings.ToLower(s) {
	case "all":
		return pus.AckAll, nil
	case "none", "":
		return pus.AckNone, nil
	}

	var ack pus.AckFlags
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'a':
			ack |= pus.AckAcceptance
		case 's':
			ack |= pus.AckStart
		case 'p':
			ack |= pus.AckProgress
		case 'c':
			ack |= pus.AckCompletion
		default:
			return 0, fmt.Errorf("invalid ack flag %q in %q", c, s)
		}
	}
	return ack, nil
}

// parseTypeArg parses a service or subservice number
func parseTypeArg(name, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0-255", name, s)
	}
	return uint8(v), nil
}

// parseHexData parses application data, ignoring ':' and space separators
func parseHexData(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", " ", "", "0x", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	service, err := parseTypeArg("service", args[0])
	if err != nil {
		return err
	}
	subservice, err := parseTypeArg("subservice", args[1])
	if err != nil {
		return err
	}
	var data []byte
	if len(args) == 3 {
		if data, err = parseHexData(args[2]); err != nil {
			return err
		}
	}
	ack, err := parseAck(sendAck)
	if err != nil {
		return err
	}

	st, err := openStation(cmd, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer st.Close()

	fmt.Printf("Connection: %s\n", st.Info())

	seq, err := st.session.Submit(service, subservice, data, ack)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		st.Close()
		os.Exit(2)
	}
	fmt.Printf("Sent TC(%d,%d) %s seq=%d ack=%s data=%d bytes\n\n",
		service, subservice, pus.FormatSubservice(service, subservice), seq, ack, len(data))

	if sendNoWait || ack == pus.AckNone {
		return nil
	}

	stage, err := st.waitFor(cmd.Context(), st.cfg.APID, seq, func(ev session.Event) {
		printEvent(ev, sendShowAll)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Aborted: %v\n", err)
		st.Close()
		os.Exit(2)
	}

	fmt.Printf("Result: %s\n", stage)
	if stage.State == session.StateFailed {
		st.Close()
		os.Exit(1)
	}
	return nil
}
