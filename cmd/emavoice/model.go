package main

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/capability"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/turn"
)

const firstMessage = "Hello! I'm your AI assistant. How can I help today?"

// controller is the part of the orchestrator the UI drives.
type controller interface {
	EnableVoice(ctx context.Context) error
	DisableVoice()
	TapToTalk(ctx context.Context) error
	Submit()
	SendText(text string) error
	SetSpeaking(enabled bool)
	Snapshot() orchestration.Snapshot
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNotice
)

type line struct {
	role        role
	text        string
	showSocials bool
}

type eventMsg struct{ event events.Event }

type snapshotMsg struct{ snapshot orchestration.Snapshot }

type actionDoneMsg struct {
	err      error
	snapshot orchestration.Snapshot
}

type model struct {
	controller     controller
	voiceAvailable bool

	input textinput.Model
	log   viewport.Model
	meter progress.Model

	snapshot  orchestration.Snapshot
	committed string
	interim   string
	lines     []line
	status    string
	statusErr bool

	width  int
	height int
}

func newModel(controller controller, voiceAvailable bool) model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = 2000
	input.Focus()

	return model{
		controller:     controller,
		voiceAvailable: voiceAvailable,
		input:          input,
		log:            viewport.New(80, 10),
		meter:          progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		snapshot:       orchestration.Snapshot{SpeakingEnabled: true},
		lines:          []line{{role: roleAssistant, text: firstMessage}},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.snapshotCmd())
}

func (m model) snapshotCmd() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snapshot: m.controller.Snapshot()}
	}
}

// actionCmd runs action off the UI goroutine and refreshes the snapshot
// afterwards.
func (m model) actionCmd(action func() error) tea.Cmd {
	return func() tea.Msg {
		err := action()
		return actionDoneMsg{err: err, snapshot: m.controller.Snapshot()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case snapshotMsg:
		m.snapshot = msg.snapshot
	case actionDoneMsg:
		m.snapshot = msg.snapshot
		if msg.err != nil {
			m.setError(msg.err)
		}
	case eventMsg:
		m.applyEvent(msg.event)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+v":
			cmd := m.toggleVoice()
			return m, cmd
		case "ctrl+t":
			cmd := m.tapToTalk()
			return m, cmd
		case "ctrl+s":
			enabled := !m.snapshot.SpeakingEnabled
			m.snapshot.SpeakingEnabled = enabled
			return m, m.actionCmd(func() error {
				m.controller.SetSpeaking(enabled)
				return nil
			})
		case "enter":
			cmd := m.submit()
			return m, cmd
		case "pgup":
			m.log.HalfPageUp()
			return m, nil
		case "pgdown":
			m.log.HalfPageDown()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) toggleVoice() tea.Cmd {
	if !m.voiceAvailable || m.snapshot.VoiceDisabled {
		m.setError(errors.New("voice mode is not available"))
		return nil
	}
	if m.snapshot.VoiceMode {
		m.status = "voice mode off"
		m.statusErr = false
		return m.actionCmd(func() error {
			m.controller.DisableVoice()
			return nil
		})
	}
	m.status = "voice mode on, start speaking"
	m.statusErr = false
	return m.actionCmd(func() error {
		return m.controller.EnableVoice(context.Background())
	})
}

func (m *model) tapToTalk() tea.Cmd {
	if !m.voiceAvailable || m.snapshot.VoiceDisabled {
		m.setError(errors.New("voice input is not available"))
		return nil
	}
	return m.actionCmd(func() error {
		return m.controller.TapToTalk(context.Background())
	})
}

// submit sends the typed text, or the spoken utterance so far when nothing
// was typed.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		if m.snapshot.State != turn.Listening {
			return nil
		}
		return m.actionCmd(func() error {
			m.controller.Submit()
			return nil
		})
	}

	m.input.SetValue("")
	return m.actionCmd(func() error {
		return m.controller.SendText(text)
	})
}

func (m *model) applyEvent(event events.Event) {
	switch typedEvent := event.(type) {
	case events.TurnStateChanged:
		m.snapshot.State = typedEvent.To
		switch typedEvent.To {
		case turn.Listening:
			m.setStatus("listening")
		case turn.Processing:
			m.setStatus("thinking")
		case turn.Speaking:
			m.setStatus("speaking, talk to interrupt")
		case turn.Idle:
			m.snapshot.VoiceMode = false
			m.snapshot.Level = 0
			m.setStatus("")
		}
	case events.UserLevelSampled:
		m.snapshot.Level = typedEvent.Level
	case events.UserTranscriptInterimUpdated:
		m.interim = typedEvent.Transcript
	case events.UserTranscriptCommittedUpdated:
		m.committed = typedEvent.Transcript
	case events.UserUtteranceSubmitted:
		m.committed, m.interim = "", ""
		m.appendLine(line{role: roleUser, text: typedEvent.Text})
	case events.AssistantReplyReceived:
		if typedEvent.Err != nil {
			var failure *capability.SendFailure
			showSocials := errors.As(typedEvent.Err, &failure) && failure.ShowSocials
			m.appendLine(line{role: roleNotice, text: typedEvent.Reply, showSocials: showSocials})
			return
		}
		m.appendLine(line{role: roleAssistant, text: typedEvent.Reply})
	case events.UserBargeIn:
		m.setStatus("interrupted")
	case events.VoiceFailed:
		m.setError(typedEvent.Err)
		if typedEvent.Degraded {
			m.snapshot.Degraded = true
		}
		if errors.Is(typedEvent.Err, capability.ErrUnsupported) {
			m.snapshot.VoiceDisabled = true
		}
	}
}

func (m *model) appendLine(l line) {
	if strings.TrimSpace(l.text) == "" {
		return
	}
	m.lines = append(m.lines, l)
	m.log.SetContent(m.renderLines(m.log.Width))
	m.log.GotoBottom()
}

func (m *model) setStatus(status string) {
	m.status = status
	m.statusErr = false
}

func (m *model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}
