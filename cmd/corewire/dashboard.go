// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"fmt"
	"time"

	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/cinderwire/cinderwire/pkg/transport"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI showing live Discover round trips",
	Long: `dashboard is a small Bubble Tea front end over the same polling loop
"corewire monitor" drives headless: it pings the device on a fixed tick
and renders the rolling response-code and round-trip-time history in a
scrolling table.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleHead = lipgloss.NewStyle().Bold(true).Underline(true)
)

type pollResultMsg struct {
	seq  uint64
	code corewire.ResponseCode
	rtt  time.Duration
	err  error
}

type tickMsg time.Time

type dashboardModel struct {
	conn     transport.Connection
	connInfo string

	polls   int
	ok      int
	failed  int
	lastRTT time.Duration
	history table.Model
	quit    bool
}

func newHistoryTable() table.Model {
	columns := []table.Column{
		{Title: "#", Width: 6},
		{Title: "Code", Width: 18},
		{Title: "RTT", Width: 12},
	}
	t := table.New(table.WithColumns(columns), table.WithHeight(10), table.WithFocused(false))
	style := table.DefaultStyles()
	style.Header = style.Header.Bold(true)
	style.Selected = lipgloss.NewStyle()
	t.SetStyles(style)
	return t
}

func initialDashboardModel(conn transport.Connection, connInfo string) dashboardModel {
	return dashboardModel{conn: conn, connInfo: connInfo, history: newHistoryTable()}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(pollOnce(m.conn, uint64(m.polls)), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollOnce(conn transport.Connection, seq uint64) tea.Cmd {
	return func() tea.Msg {
		var challenge [8]byte
		start := time.Now()
		frame := buildRequestFrame(corewire.CmdCommControl, corewire.SubDiscover, challenge[:])
		if _, err := conn.Write(frame); err != nil {
			return pollResultMsg{err: err, seq: seq}
		}
		resp, err := readResponseFrame(conn)
		if err != nil {
			return pollResultMsg{err: err, seq: seq}
		}
		return pollResultMsg{code: resp.Code, rtt: time.Since(start), seq: seq}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quit = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, pollOnce(m.conn, uint64(m.polls))
	case pollResultMsg:
		m.polls++
		row := table.Row{fmt.Sprintf("%d", msg.seq), "error", "-"}
		if msg.err == nil {
			m.lastRTT = msg.rtt
			if msg.code != corewire.CodeOK {
				m.failed++
			} else {
				m.ok++
			}
			row = table.Row{fmt.Sprintf("%d", msg.seq), msg.code.String(), msg.rtt.String()}
		} else {
			m.failed++
			row = table.Row{fmt.Sprintf("%d", msg.seq), fmt.Sprintf("error: %v", msg.err), "-"}
		}
		rows := append(m.history.Rows(), row)
		if len(rows) > 100 {
			rows = rows[len(rows)-100:]
		}
		m.history.SetRows(rows)
		m.history.GotoBottom()
		return m, tickEvery()
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.quit {
		return ""
	}
	s := styleHead.Render("corewire dashboard") + "\n"
	s += styleDim.Render(m.connInfo) + "\n\n"
	failedStyle := styleOK
	if m.failed > 0 {
		failedStyle = styleBad
	}
	s += fmt.Sprintf("Polls: %d   %s   %s   Last RTT: %s\n\n",
		m.polls,
		styleOK.Render(fmt.Sprintf("OK: %d", m.ok)),
		failedStyle.Render(fmt.Sprintf("Failed: %d", m.failed)),
		m.lastRTT)
	s += m.history.View()
	s += "\n\n" + styleDim.Render("press q to quit")
	return s
}

func runDashboard(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := tea.NewProgram(initialDashboardModel(conn, connInfo), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
