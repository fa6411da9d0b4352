package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-voice/core/turn"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

var (
	accent = lipgloss.Color("#01cdfe")
	warn   = lipgloss.Color("#ff71ce")
	muted  = lipgloss.Color("#9ca3d8")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	badgeStyle  = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#120924"))
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	errorStyle  = lipgloss.NewStyle().Foreground(warn).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(warn)
	panelStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)

	stateColors = map[turn.State]lipgloss.Color{
		turn.Idle:       muted,
		turn.Listening:  lipgloss.Color("#05ffa1"),
		turn.Processing: lipgloss.Color("#fffb96"),
		turn.Speaking:   accent,
	}
)

const socialsHint = "Still stuck? Reach us on our social channels."

func (m *model) resize() {
	contentWidth := max(20, m.width-4)
	m.input.Width = max(10, contentWidth-4)
	m.meter.Width = max(10, contentWidth-16)
	m.log.Width = contentWidth
	// Header, transcript, meter, input panel and footer.
	m.log.Height = max(3, m.height-12)
	m.log.SetContent(m.renderLines(m.log.Width))
	m.log.GotoBottom()
}

func (m model) View() string {
	sections := []string{
		m.renderHeader(),
		panelStyle.Render(m.log.View()),
		m.renderTranscript(),
		m.renderMeter(),
		panelStyle.Render(m.input.View()),
		m.renderFooter(),
	}
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	state := m.snapshot.State
	badge := badgeStyle.Background(stateColors[state]).Render(strings.ToUpper(state.String()))

	var flags []string
	if m.snapshot.VoiceMode {
		flags = append(flags, "voice")
	}
	if !m.snapshot.SpeakingEnabled {
		flags = append(flags, "muted")
	}
	if m.snapshot.Degraded {
		flags = append(flags, "no level meter")
	}
	if !m.voiceAvailable || m.snapshot.VoiceDisabled {
		flags = append(flags, "text only")
	}

	header := titleStyle.Render("Jay - AI") + " " + badge
	if len(flags) > 0 {
		header += " " + mutedStyle.Render(strings.Join(flags, " · "))
	}
	return header
}

func (m model) renderLines(width int) string {
	width = max(10, width)
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch l.role {
		case roleUser:
			b.WriteString(userStyle.Render("You"))
		case roleAssistant:
			b.WriteString(botStyle.Render("Assistant"))
		case roleNotice:
			b.WriteString(noticeStyle.Render("Notice"))
		}
		b.WriteString("\n")
		b.WriteString(wordwrap.String(l.text, width))
		if l.showSocials {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(wordwrap.String(socialsHint, width)))
		}
	}
	return b.String()
}

func (m model) renderTranscript() string {
	if m.snapshot.State != turn.Listening && m.committed == "" && m.interim == "" {
		return mutedStyle.Render("…")
	}

	transcript := m.committed
	if m.interim != "" {
		if transcript != "" {
			transcript += " "
		}
		transcript += mutedStyle.Render(m.interim)
	}
	if transcript == "" {
		transcript = mutedStyle.Render("listening…")
	}
	return truncate.StringWithTail(transcript, uint(max(10, m.width-2)), "…")
}

func (m model) renderMeter() string {
	level := m.snapshot.Level
	if !m.snapshot.State.CapturesAudio() && !m.snapshot.State.PlaysAudio() {
		level = 0
	}
	return fmt.Sprintf("%s %s", mutedStyle.Render("mic"), m.meter.ViewAs(min(1, level*4)))
}

func (m model) renderFooter() string {
	help := mutedStyle.Render("enter send · ctrl+v voice · ctrl+t tap to talk · ctrl+s mute · esc quit")
	switch {
	case m.status == "":
		return help
	case m.statusErr:
		return errorStyle.Render(m.status) + "\n" + help
	default:
		return mutedStyle.Render(m.status) + "\n" + help
	}
}
