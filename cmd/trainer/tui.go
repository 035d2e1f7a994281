package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(18)
	bestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	workers     int
	gamesTarget int

	gamesPlayed int
	placements  int64
	lines       int64
	bestScore   int
	startTime   time.Time
	recentGames []string
	last        map[int]GameUpdate
	done        bool

	updates chan GameUpdate
	doneCh  <-chan struct{}
}

func initialModel(cfg config, updates chan GameUpdate, doneCh <-chan struct{}) model {
	return model{
		workers:     cfg.Workers,
		gamesTarget: cfg.Games * cfg.Workers,
		startTime:   time.Now(),
		last:        make(map[int]GameUpdate),
		updates:     updates,
		doneCh:      doneCh,
	}
}

type TickMsg time.Time

type runDoneMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), waitForDone(m.doneCh), tickCmd())
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func waitForDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return runDoneMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.placements = totalPlacements.Load()
		m.lines = totalLines.Load()
		return m, tickCmd()
	case runDoneMsg:
		m.done = true
		return m, tea.Quit
	case GameUpdate:
		m.gamesPlayed++
		m.last[msg.WorkerID] = msg
		if msg.Result.Score > m.bestScore {
			m.bestScore = msg.Result.Score
		}
		capped := ""
		if msg.Capped {
			capped = " (capped)"
		}
		line := fmt.Sprintf("Worker %d game %d: score %d, lines %d, placements %d%s",
			msg.WorkerID, msg.Game, msg.Result.Score, msg.Result.Lines, msg.Result.Placements, capped)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	placementsPerSec := float64(m.placements) / duration.Seconds()
	if duration.Seconds() < 1 {
		placementsPerSec = 0
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tetromino self-play") + "\n\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("Games", fmt.Sprintf("%d / %d", m.gamesPlayed, m.gamesTarget))
	row("Placements", fmt.Sprintf("%d", m.placements))
	row("Lines", fmt.Sprintf("%d", m.lines))
	row("Best score", bestStyle.Render(fmt.Sprintf("%d", m.bestScore)))
	row("Duration", duration.Round(time.Second).String())
	row("Placements/sec", fmt.Sprintf("%.1f", placementsPerSec))

	if len(m.last) > 0 {
		var ws strings.Builder
		ws.WriteString("worker w_height  w_bump   w_max  w_holes  eps\n")
		for id := 0; id < m.workers; id++ {
			u, ok := m.last[id]
			if !ok {
				continue
			}
			ws.WriteString(fmt.Sprintf("%-6d %7.2f %7.2f %7.2f %7.2f  %.3f\n",
				id, u.Weights[0], u.Weights[1], u.Weights[2], u.Weights[3], u.Epsilon))
		}
		b.WriteString("\n" + boxStyle.Render(strings.TrimRight(ws.String(), "\n")) + "\n")
	}

	b.WriteString("\nRecent Games:\n")
	for _, g := range m.recentGames {
		b.WriteString(g + "\n")
	}
	if m.done {
		b.WriteString("\nRun complete.\n")
	} else {
		b.WriteString("\nPress q to quit.\n")
	}
	return b.String()
}
