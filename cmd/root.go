// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/internal/config"
)

var (
	configPath string

	// Transport selection flags
	tcpAddr     string
	udpAddr     string
	portName    string
	baudRate    int
	framingMode string
	frameSize   int
	virtualPath string
	useDummy    bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Station flags
	apid        uint16
	sourceID    uint16
	capturePath string
	logFile     string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "parhelion",
	Short: "PUS telecommand and telemetry ground tool",
	Long: `Parhelion - A CLI tool for commanding and monitoring spacecraft software
over CCSDS space packets carrying ECSS PUS services.

Telecommands are tracked through their service 1 verification reports
(acceptance, start, progress, completion) and time out when the target goes
quiet.

Connection modes:
  TCP:       --tcp host:port
  UDP:       --udp host:port
  Serial:    --port /dev/ttyUSB0 [--baud 115200] [--framing ascii|fixed] [--frame-size 256]
  Emulator:  --virtual /tmp/qemu-serial.sock | --virtual tcp://host:port
  WebSocket: --url ws://host/path [--username user]
  Loopback:  --dummy

Settings may also come from a YAML profile (--config or PARHELION_CONFIG).
Flags override the profile.

For WebSocket authentication, the password is read from the PARHELION_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML profile (default $PARHELION_CONFIG)")

	// Transport selection flags
	pf.StringVar(&tcpAddr, "tcp", "", "TCP target address (host:port)")
	pf.StringVar(&udpAddr, "udp", "", "UDP target address (host:port)")
	pf.StringVarP(&portName, "port", "p", "", "Serial port device")
	pf.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	pf.StringVar(&framingMode, "framing", "ascii", "Serial framing: ascii or fixed")
	pf.IntVar(&frameSize, "frame-size", 256, "Frame size in bytes (fixed framing only)")
	pf.StringVar(&virtualPath, "virtual", "", "Emulator serial: unix socket, pty or tcp://host:port")
	pf.BoolVar(&useDummy, "dummy", false, "Talk to the built-in emulated target")

	// WebSocket connection flags
	pf.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Station flags
	pf.Uint16Var(&apid, "apid", 0, "Target APID (e.g. 0x42)")
	pf.Uint16Var(&sourceID, "source-id", 0, "Ground station source ID")
	pf.StringVar(&capturePath, "capture", "", "Record every frame to a capture file")
	pf.StringVar(&logFile, "log-file", "", "Write the log to a rotating file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadProfile merges the YAML profile, the environment and the command line
func loadProfile(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("apid") {
		cfg.APID = apid
	}
	if flags.Changed("source-id") {
		cfg.SourceID = sourceID
	}

	t := &cfg.Transport
	var selected []string
	if useDummy {
		t.Kind = config.KindDummy
		selected = append(selected, "--dummy")
	}
	if tcpAddr != "" {
		t.Kind, t.Address = config.KindTCP, tcpAddr
		selected = append(selected, "--tcp")
	}
	if udpAddr != "" {
		t.Kind, t.Address = config.KindUDP, udpAddr
		selected = append(selected, "--udp")
	}
	if portName != "" {
		if t.Kind != config.KindSerialFixed {
			t.Kind = config.KindSerialASCII
		}
		t.Device = portName
		selected = append(selected, "--port")
	}
	if virtualPath != "" {
		t.Kind, t.Address = config.KindVirtual, virtualPath
		selected = append(selected, "--virtual")
	}
	if wsURL != "" {
		t.Kind, t.URL = config.KindWebSocket, wsURL
		selected = append(selected, "--url")
	}
	if len(selected) > 1 {
		return nil, fmt.Errorf("only one transport may be selected, got %s", strings.Join(selected, ", "))
	}

	if flags.Changed("framing") {
		switch framingMode {
		case "ascii":
			if t.Kind == config.KindSerialFixed {
				t.Kind = config.KindSerialASCII
			}
		case "fixed":
			if t.Kind == config.KindSerialASCII {
				t.Kind = config.KindSerialFixed
			}
		default:
			return nil, fmt.Errorf("invalid framing %q, must be ascii or fixed", framingMode)
		}
	}
	if flags.Changed("baud") {
		t.Baud = baudRate
	}
	if flags.Changed("frame-size") {
		t.FrameSize = frameSize
	}
	if flags.Changed("username") {
		t.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		t.NoSSLVerify = wsNoSSLVerify
	}

	if capturePath != "" {
		cfg.Capture.File = capturePath
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if verbose {
		cfg.Logging.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
