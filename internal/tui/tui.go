// Package tui renders the two result cells in the terminal for headless runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"livesense/internal/state"
)

type AudioMsg struct{ Label string }
type VideoMsg struct{ Label string }
type StatusMsg struct {
	Video   string
	FPS     uint
	Latency time.Duration
}
type tickMsg time.Time

// StatusFunc is polled on every tick.
type StatusFunc func() StatusMsg

type model struct {
	audio, video  string
	audioEvents   int
	videoEvents   int
	status        StatusMsg
	poll          StatusFunc
	width, height int
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("236")).
			Padding(0, 2).
			Width(30)
)

func newModel(display *state.Display, poll StatusFunc) model {
	return model{
		audio: display.Audio.Get(),
		video: display.Video.Get(),
		poll:  poll,
	}
}

// NewProgram builds the terminal UI. Call Forward to feed it the cells.
func NewProgram(display *state.Display, poll StatusFunc) *tea.Program {
	return tea.NewProgram(newModel(display, poll), tea.WithAltScreen())
}

// Forward sends every cell update to p until stop is closed.
func Forward(p *tea.Program, display *state.Display, stop <-chan struct{}) {
	audio, cancelAudio := display.Audio.Watch()
	video, cancelVideo := display.Video.Watch()
	defer cancelAudio()
	defer cancelVideo()

	for {
		select {
		case <-stop:
			return
		case v := <-audio:
			p.Send(AudioMsg{Label: v})
		case v := <-video:
			p.Send(VideoMsg{Label: v})
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		if m.poll != nil {
			m.status = m.poll()
		}
		return m, tick()

	case AudioMsg:
		m.audio = msg.Label
		m.audioEvents++

	case VideoMsg:
		m.video = msg.Label
		m.videoEvents++

	case StatusMsg:
		m.status = msg
	}
	return m, nil
}

func renderPanel(title, value string, events int) string {
	style := labelStyle
	if events == 0 {
		style = pendingStyle
	}
	body := titleStyle.Render(title) + "\n\n" + style.Render(value)
	if events > 0 {
		body += "\n" + statusStyle.Render(fmt.Sprintf("%d updates", events))
	}
	return panelStyle.Render(body)
}

func (m model) View() string {
	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		renderPanel("Speech", m.audio, m.audioEvents),
		" ",
		renderPanel("Object", m.video, m.videoEvents),
	)

	var lines []string
	lines = append(lines, panels, "")
	if m.status.Video != "" {
		lines = append(lines, statusStyle.Render(fmt.Sprintf("video %s | FPS: %d | Latency: %d ms",
			m.status.Video, m.status.FPS, m.status.Latency.Milliseconds())))
	}
	lines = append(lines, helpStyle.Render("q to quit"))

	view := strings.Join(lines, "\n")
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, view)
	}
	return view
}
