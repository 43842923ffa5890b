// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/parhelion/pkg/comif"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for commanding and monitoring a target",
	Long: `Command a PUS target and watch its telemetry in an interactive terminal UI.

Features:
  - Command entry: SERVICE SUBSERVICE [HEXDATA], e.g. "17 1"
  - Table of open and finished commands with their verification stage
  - Statistics tracking
  - Event log of verification reports, timeouts and anomalies
  - Automatic reconnection on connection loss

Tab switches between the command entry and the command table. In the table,
arrow keys select a command and 'c' stops tracking it.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// poller drives the session and forwards events to the TUI
type poller struct {
	st   *station
	p    *tea.Program
	done chan struct{}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	st, err := openStation(cmd, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	m := initialMonitorModel(st)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context()))

	pl := &poller{st: st, p: p, done: make(chan struct{})}
	go pl.loop()
	defer close(pl.done)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// loop polls the session at the configured interval, reconnecting when the
// transport fails
func (pl *poller) loop() {
	ticker := time.NewTicker(pl.st.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-pl.done:
			return
		case <-ticker.C:
		}

		events, err := pl.st.session.PollOnce()
		if len(events) > 0 {
			pl.p.Send(monitorBatchMsg{events: events})
		}
		if errors.Is(err, comif.ErrIO) || errors.Is(err, comif.ErrTransportClosed) {
			pl.p.Send(connectionLostMsg{err: err})
			if !pl.reconnect() {
				return
			}
		} else if err != nil {
			pl.st.log.Printf("poll: %v", err)
		}
	}
}

// reconnect reopens the interface with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (pl *poller) reconnect() bool {
	iface := pl.st.iface
	if err := iface.Close(); err != nil {
		pl.st.log.Printf("close: %v", err)
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-pl.done:
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		err := iface.Open(ctx)
		cancel()
		if err == nil {
			pl.p.Send(reconnectedMsg{connInfo: pl.st.Info()})
			return true
		}
		pl.st.log.Printf("reconnect: %v", err)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
