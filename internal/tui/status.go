// SPDX-License-Identifier: MIT

// Package tui renders the enhancer's live status in the terminal. Any
// key or mouse event counts as the user gesture that unlocks audio
// processing, mirroring host activation policy.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"enhancer/internal/analysis"
	"enhancer/internal/enhancer"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E06C75")).
			Bold(true)
)

const refreshInterval = 500 * time.Millisecond

// spectrumColumns is how many bars the spectrum strip renders.
const spectrumColumns = 48

var spectrumGlyphs = []rune("▁▂▃▄▅▆▇█")

type keyMap struct {
	Toggle     key.Binding
	Subtle     key.Binding
	Balanced   key.Binding
	Aggressive key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle:     key.NewBinding(key.WithKeys(" ", "e"), key.WithHelp("space", "toggle")),
		Subtle:     key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "subtle")),
		Balanced:   key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "balanced")),
		Aggressive: key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "aggressive")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type tickMsg time.Time

type statusMsg enhancer.Status

type toggleDoneMsg struct{ err error }

// StatusModel is the Bubble Tea model for the enhancer status screen.
type StatusModel struct {
	enh    *enhancer.Enhancer
	status enhancer.Status
	keys   keyMap
	notice string
	width  int
}

// NewStatusModel creates the status screen bound to an enhancer.
func NewStatusModel(enh *enhancer.Enhancer) StatusModel {
	return StatusModel{
		enh:  enh,
		keys: defaultKeyMap(),
	}
}

// Init starts the refresh cadence.
func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.fetchStatus)
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m StatusModel) fetchStatus() tea.Msg {
	return statusMsg(m.enh.Status())
}

// Update handles input and refresh ticks.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.fetchStatus)

	case statusMsg:
		m.status = enhancer.Status(msg)

	case toggleDoneMsg:
		switch {
		case msg.err == nil:
			m.notice = ""
		case errors.Is(msg.err, enhancer.ErrBusy):
			m.notice = "still switching, hold on"
		case errors.Is(msg.err, enhancer.ErrUnavailable):
			m.notice = "enhancement unavailable for this source"
		default:
			m.notice = msg.err.Error()
		}
		return m, m.fetchStatus

	case tea.MouseMsg:
		// A click is a qualifying gesture too.
		m.enh.HandleUserGesture(context.Background())

	case tea.KeyMsg:
		// Every keypress doubles as the activation gesture.
		m.enh.HandleUserGesture(context.Background())

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Toggle):
			enh := m.enh
			return m, func() tea.Msg {
				return toggleDoneMsg{err: enh.Toggle(context.Background())}
			}

		case key.Matches(msg, m.keys.Subtle):
			m.enh.SetLevel(1)
			return m, m.fetchStatus
		case key.Matches(msg, m.keys.Balanced):
			m.enh.SetLevel(2)
			return m, m.fetchStatus
		case key.Matches(msg, m.keys.Aggressive):
			m.enh.SetLevel(3)
			return m, m.fetchStatus
		}
	}

	return m, nil
}

// View renders the status screen.
func (m StatusModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Audio Enhancer"))
	sb.WriteString("\n\n")

	s := m.status
	state := "OFF"
	if s.Enabled {
		state = "ON"
	}
	line := fmt.Sprintf("Enhancement: %s", state)
	if s.Connected {
		line += highlightStyle.Render("  ● connected")
	} else if s.Enabled {
		line += infoStyle.Render("  ○ bypassed")
	}
	sb.WriteString(line)
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Profile:     %s (level %d)\n", s.Profile, s.Level))
	sb.WriteString(fmt.Sprintf("Quality:     %s\n", renderQuality(s.Quality)))

	if s.Analyzing && s.Analysis != nil && len(s.Analysis.Spectrum) > 0 {
		sb.WriteString("\n")
		sb.WriteString(renderSpectrum(s.Analysis.Spectrum))
		sb.WriteString("\n")
		sb.WriteString(infoStyle.Render(fmt.Sprintf("dynamic range %.2f   noise %.2f",
			s.Analysis.DynamicRange, s.Analysis.NoiseLevel)))
		sb.WriteString("\n")
	}

	if !s.Available {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render("Enhancement unavailable for this source."))
		sb.WriteString("\n")
	} else if s.RequiresActivation {
		sb.WriteString("\n")
		sb.WriteString(warnStyle.Render("Press any key to activate audio processing."))
		sb.WriteString("\n")
	}

	if m.notice != "" {
		sb.WriteString("\n")
		sb.WriteString(warnStyle.Render(m.notice))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("space: toggle • 1/2/3: level • q: quit"))
	sb.WriteString("\n")

	return sb.String()
}

func renderQuality(q analysis.Quality) string {
	switch q {
	case analysis.QualityHigh:
		return highlightStyle.Render("high")
	case analysis.QualityMedium:
		return warnStyle.Render("medium")
	case analysis.QualityLow:
		return errStyle.Render("low")
	default:
		return infoStyle.Render("original")
	}
}

// renderSpectrum folds the spectrum into a fixed-width strip of block
// glyphs, each column the mean of its bin range.
func renderSpectrum(spectrum []float64) string {
	cols := spectrumColumns
	if len(spectrum) < cols {
		cols = len(spectrum)
	}

	var sb strings.Builder
	binsPerCol := len(spectrum) / cols
	for c := 0; c < cols; c++ {
		sum := 0.0
		for b := c * binsPerCol; b < (c+1)*binsPerCol; b++ {
			sum += spectrum[b]
		}
		mean := sum / float64(binsPerCol)
		idx := int(mean * float64(len(spectrumGlyphs)))
		if idx >= len(spectrumGlyphs) {
			idx = len(spectrumGlyphs) - 1
		}
		sb.WriteRune(spectrumGlyphs[idx])
	}
	return highlightStyle.Render(sb.String())
}

// StartStatusUI launches the Bubble Tea TUI for the enhancer.
func StartStatusUI(enh *enhancer.Enhancer) error {
	p := tea.NewProgram(
		NewStatusModel(enh),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}
