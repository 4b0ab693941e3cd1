package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/threadai/aiplayer"
	"github.com/brensch/threadai/sim"
)

type turnMsg struct {
	report sim.TurnReport
	stats  []aiplayer.Stats
}

type doneMsg struct{}

type tickMsg time.Time

type model struct {
	startTime time.Time
	turns     int
	last      sim.TurnReport
	stats     []aiplayer.Stats
	applied   int
	discarded int
	transfers int
	recent    []string
	updates   <-chan turnMsg
	cancel    func()
}

func newModel(turns int, updates <-chan turnMsg, cancel func()) model {
	return model{
		startTime: time.Now(),
		turns:     turns,
		updates:   updates,
		cancel:    cancel,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForTurn(updates <-chan turnMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return msg
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForTurn(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cancel()
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case turnMsg:
		m.last = msg.report
		m.stats = msg.stats
		m.applied += msg.report.Applied
		m.discarded += msg.report.Discarded
		m.transfers += msg.report.Transfers

		line := fmt.Sprintf("Turn %d: %d ai running, %d tasks, %d discarded, %s",
			msg.report.Turn, msg.report.Running, msg.report.Applied, msg.report.Discarded, msg.report.Took.Round(time.Microsecond))
		if msg.report.TimedOut {
			line += " (timed out)"
		}
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 8 {
			m.recent = m.recent[:8]
		}
		return m, waitForTurn(m.updates)
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	turnsPerSec := 0.0
	if duration.Seconds() >= 1 {
		turnsPerSec = float64(m.last.Turn) / duration.Seconds()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Turn:        %d / %d\n", m.last.Turn, m.turns)
	fmt.Fprintf(&b, "Duration:    %s\n", duration.Round(time.Second))
	fmt.Fprintf(&b, "Turns/Sec:   %.2f\n", turnsPerSec)
	fmt.Fprintf(&b, "Tasks:       %d applied, %d discarded\n", m.applied, m.discarded)
	fmt.Fprintf(&b, "Transfers:   %d\n\n", m.transfers)

	b.WriteString("Players:\n")
	for _, st := range m.stats {
		b.WriteString(playerLine(st))
		b.WriteByte('\n')
	}

	b.WriteString("\nRecent Turns:\n")
	for _, r := range m.recent {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	b.WriteString("\nPress q to quit.\n")
	return b.String()
}
