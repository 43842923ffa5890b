// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/parhelion/internal/config"
	"github.com/Thermoquad/parhelion/internal/logging"
	"github.com/Thermoquad/parhelion/pkg/comif"
	"github.com/Thermoquad/parhelion/pkg/record"
	"github.com/Thermoquad/parhelion/pkg/session"
)

const openTimeout = 15 * time.Second

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// NewInterface creates the backend selected by the profile. The interface is
// not opened.
func NewInterface(cfg *config.Config, logger *log.Logger) (comif.Interface, error) {
	t := cfg.Transport
	opts := []comif.Option{
		comif.WithLogger(logger),
		comif.WithQueueSize(t.QueueSize),
		comif.WithWriteTimeout(cfg.WriteTimeout()),
	}

	switch t.Kind {
	case config.KindTCP:
		return comif.NewTCP(t.Address, opts...), nil
	case config.KindUDP:
		return comif.NewUDP(t.Address, opts...), nil
	case config.KindSerialFixed:
		return comif.NewSerialFixed(t.Device, t.Baud, t.FrameSize, t.Fill, opts...)
	case config.KindSerialASCII:
		return comif.NewSerialASCII(t.Device, t.Baud, t.ASCII(), opts...)
	case config.KindVirtual:
		return comif.NewVirtualSerial(t.Address, t.ASCII(), opts...)
	case config.KindDummy:
		return comif.NewDummy(cfg.APID, opts...), nil
	case config.KindWebSocket:
		password := ""
		if t.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		return comif.NewWebSocket(t.URL, t.Username, password, t.NoSSLVerify, opts...)
	}
	return nil, fmt.Errorf("unknown transport kind %q", t.Kind)
}

// station bundles an open interface with the session tracking it
type station struct {
	cfg     *config.Config
	log     *logging.Logger
	iface   comif.Interface
	session *session.Session
	capture *record.Writer
}

// openStation loads the profile, opens the interface and starts a session.
// tweak may adjust the profile before anything is opened.
func openStation(cmd *cobra.Command, tweak func(*config.Config)) (*station, error) {
	cfg, err := loadProfile(cmd)
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	version, _ := cfg.Version()

	logger := logging.New(cfg.Logging)
	st := &station{cfg: cfg, log: logger}

	st.iface, err = NewInterface(cfg, logger.Logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), openTimeout)
	defer cancel()
	if err := st.iface.Open(ctx); err != nil {
		logger.Close()
		return nil, err
	}

	scfg := session.Config{
		APID:        cfg.APID,
		SourceID:    cfg.SourceID,
		Version:     version,
		Timeout:     cfg.CommandTimeout(),
		SendRetries: cfg.Timing.SendRetries,
		RetryDelay:  cfg.RetryDelay(),
		Logger:      logger.Logger,
	}
	if cfg.Capture.File != "" {
		st.capture, err = record.Create(cfg.Capture.File, st.iface.ID())
		if err != nil {
			st.Close()
			return nil, err
		}
		scfg.Recorder = st.capture
	}

	st.session, err = session.New(st.iface, scfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// Info describes the connection for banners
func (st *station) Info() string {
	version, _ := st.cfg.Version()
	return fmt.Sprintf("%s (APID 0x%03X, %s)", st.iface.ID(), st.cfg.APID, version)
}

// Close releases the interface, the capture and the log file
func (st *station) Close() {
	if err := st.iface.Close(); err != nil {
		st.log.Printf("close: %v", err)
	}
	if st.capture != nil {
		if err := st.capture.Close(); err != nil {
			st.log.Printf("capture: %v", err)
		}
	}
	st.log.Close()
}

// waitFor polls until the command seq is finished. Every event is passed to
// onEvent.
func (st *station) waitFor(ctx context.Context, apid, seq uint16, onEvent func(session.Event)) (session.Stage, error) {
	ticker := time.NewTicker(st.cfg.PollInterval())
	defer ticker.Stop()

	for {
		events, err := st.session.PollOnce()
		for _, ev := range events {
			if onEvent != nil {
				onEvent(ev)
			}
		}
		if err != nil {
			return session.Stage{}, err
		}

		stage, err := st.session.StatusFor(apid, seq)
		if err != nil {
			return session.Stage{}, err
		}
		if stage.Finished() {
			return stage, nil
		}

		select {
		case <-ctx.Done():
			return stage, ctx.Err()
		case <-ticker.C:
		}
	}
}
