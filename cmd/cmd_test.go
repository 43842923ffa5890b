// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/parhelion/internal/config"
	"github.com/Thermoquad/parhelion/internal/logging"
	"github.com/Thermoquad/parhelion/pkg/comif"
	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

func newTestStation(t *testing.T) (*station, *comif.Dummy) {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.Kind = config.KindDummy

	d := comif.NewDummy(cfg.APID)
	require.NoError(t, d.Open(context.Background()))
	s, err := session.New(d, session.Config{APID: cfg.APID, Version: pus.VersionC})
	require.NoError(t, err)

	st := &station{cfg: cfg, log: logging.New(cfg.Logging), iface: d, session: s}
	t.Cleanup(st.Close)
	return st, d
}

// pollAll feeds session events to the model until the session goes quiet
func pollAll(t *testing.T, m monitorModel) monitorModel {
	t.Helper()
	for i := 0; i < 4; i++ {
		events, err := m.st.session.PollOnce()
		require.NoError(t, err)
		next, _ := m.Update(monitorBatchMsg{events: events})
		m = next.(monitorModel)
	}
	return m
}

func logText(m monitorModel) string {
	var b strings.Builder
	for _, e := range m.eventLog {
		b.WriteString(e.message)
		b.WriteString("\n")
	}
	return b.String()
}

func TestParseAck(t *testing.T) {
	tests := []struct {
		in   string
		want pus.AckFlags
	}{
		{"all", pus.AckAll},
		{"ALL", pus.AckAll},
		{"none", pus.AckNone},
		{"a", pus.AckAcceptance},
		{"ac", pus.AckAcceptance | pus.AckCompletion},
		{"psa", pus.AckAcceptance | pus.AckStart | pus.AckProgress},
	}
	for _, tt := range tests {
		got, err := parseAck(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseAck("ax")
	assert.Error(t, err)
}

func TestParseHexData(t *testing.T) {
	data, err := parseHexData("0a:0B 0c")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C}, data)

	data, err = parseHexData("0xDEAD")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, data)

	_, err = parseHexData("abc")
	assert.Error(t, err)
}

func TestParseCommandLine(t *testing.T) {
	svc, sub, data, err := parseCommandLine("17 1")
	require.NoError(t, err)
	assert.Equal(t, uint8(17), svc)
	assert.Equal(t, uint8(1), sub)
	assert.Empty(t, data)

	svc, sub, data, err = parseCommandLine(" 0x03 5  01 02 ")
	require.NoError(t, err)
	assert.Equal(t, uint8(3), svc)
	assert.Equal(t, uint8(5), sub)
	assert.Equal(t, []byte{1, 2}, data)

	for _, bad := range []string{"", "17", "256 1", "17 x", "17 1 zz"} {
		_, _, _, err := parseCommandLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadProfile_OneTransport(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	tcpAddr, useDummy = "127.0.0.1:1", true
	defer func() { tcpAddr, useDummy = "", false }()

	_, err := loadProfile(rootCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one transport")
}

func TestLoadProfile_Dummy(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	useDummy = true
	defer func() { useDummy = false }()

	cfg, err := loadProfile(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, config.KindDummy, cfg.Transport.Kind)
}

func TestStation_WaitFor(t *testing.T) {
	st, _ := newTestStation(t)

	seq, err := st.session.Submit(pus.ServiceTest, pus.SubPing, nil, pus.PingAck)
	require.NoError(t, err)

	var kinds []session.EventKind
	stage, err := st.waitFor(context.Background(), st.cfg.APID, seq, func(ev session.Event) {
		kinds = append(kinds, ev.Kind)
	})
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, stage.State)
	assert.Contains(t, kinds, session.EventTelemetry)
}

func TestStation_WaitForAcceptanceOnly(t *testing.T) {
	st, _ := newTestStation(t)

	seq, err := st.session.Submit(pus.ServiceHousekeeping, 5, nil, pus.AckAcceptance)
	require.NoError(t, err)

	stage, err := st.waitFor(context.Background(), st.cfg.APID, seq, nil)
	require.NoError(t, err)
	assert.Equal(t, session.StateAccepted, stage.State)
	assert.True(t, stage.Final)
	assert.NoError(t, stage.Err())
}

func TestStation_WaitForNoAck(t *testing.T) {
	st, _ := newTestStation(t)

	seq, err := st.session.Submit(pus.ServiceHousekeeping, 5, nil, pus.AckNone)
	require.NoError(t, err)

	stage, err := st.waitFor(context.Background(), st.cfg.APID, seq, nil)
	require.NoError(t, err)
	assert.Equal(t, session.StateSent, stage.State)
	assert.True(t, stage.Finished())
}

func TestMonitorModel_SubmitPing(t *testing.T) {
	st, _ := newTestStation(t)
	m := initialMonitorModel(st)
	m.input.SetValue("17 1")

	next, cmd := m.submit()
	m = next.(monitorModel)
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	next, _ = m.Update(cmd())
	m = next.(monitorModel)
	assert.Contains(t, logText(m), "Sent TC(17,1)")
	require.Len(t, m.commands, 1)
	assert.Equal(t, 1, m.openCount())

	m = pollAll(t, m)

	require.Len(t, m.commands, 1)
	assert.Equal(t, session.StateCompleted, m.commands[0].Stage.State)
	assert.Equal(t, 0, m.openCount())
	assert.Contains(t, logText(m), "COMPLETION_SUCCESS")
	require.NotNil(t, m.lastTM)
	assert.True(t, pus.IsPingReply(m.lastTM))
	assert.Equal(t, uint64(3), m.stats.TotalPackets)
}

func TestMonitorModel_RejectedCommand(t *testing.T) {
	st, d := newTestStation(t)
	d.FailCommand(pus.ServiceFunction, 1, 0x0042)
	m := initialMonitorModel(st)
	m.input.SetValue("8 1 0102")

	next, cmd := m.submit()
	m = next.(monitorModel)
	next, _ = m.Update(cmd())
	m = pollAll(t, next.(monitorModel))

	require.Len(t, m.commands, 1)
	assert.Equal(t, session.StateFailed, m.commands[0].Stage.State)
	assert.Contains(t, logText(m), "ACCEPTANCE_FAILURE")
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)
}

func TestMonitorModel_InvalidEntry(t *testing.T) {
	st, _ := newTestStation(t)
	m := initialMonitorModel(st)
	m.input.SetValue("17")

	next, cmd := m.submit()
	m = next.(monitorModel)
	assert.Nil(t, cmd)
	assert.Contains(t, logText(m), "usage")
	assert.Empty(t, st.session.Pending())
}

func TestMonitorModel_Cancel(t *testing.T) {
	st, _ := newTestStation(t)
	seq, err := st.session.Submit(pus.ServiceTest, pus.SubPing, nil, pus.PingAck)
	require.NoError(t, err)

	m := initialMonitorModel(st)
	m.refresh()
	m.toggleFocus()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	m = next.(monitorModel)

	assert.Empty(t, st.session.Pending())
	assert.Contains(t, logText(m), "Stopped tracking seq")
	_, err = st.session.Status(seq)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMonitorModel_ConnectionLost(t *testing.T) {
	st, _ := newTestStation(t)
	m := initialMonitorModel(st)

	next, _ := m.Update(connectionLostMsg{err: comif.ErrIO})
	m = next.(monitorModel)
	assert.True(t, m.connectionLost)
	assert.Contains(t, m.View(), "RECONNECTING")

	m.input.SetValue("17 1")
	next, cmd := m.submit()
	m = next.(monitorModel)
	assert.Nil(t, cmd)
	assert.Contains(t, logText(m), "connection lost")

	next, _ = m.Update(reconnectedMsg{connInfo: st.Info()})
	m = next.(monitorModel)
	assert.False(t, m.connectionLost)
}
