package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/internal/config"
	"github.com/muesli/reflow/wordwrap"
)

const (
	frameInterval  = time.Second / 30
	spectrumBands  = 24
	spectrumFloor  = -90.0
	eventLogLines  = 8
	operationLimit = 10 * time.Second
	sidebarWidth   = 36
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pendingStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	recordingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

var barRunes = []rune(" ▁▂▃▄▅▆▇█")

type tickMsg time.Time

type operationMsg struct {
	op  string
	err error
}

// conversationView is what the conversation pane polls each frame.
type conversationView interface {
	Summaries() []conversations.Summary
	ConversationVersion() uint64
}

type model struct {
	controller *orchestration.Controller
	view       conversationView
	speakers   []string
	errs       <-chan error
	dial       func(ctx context.Context) error

	conversation viewport.Model
	input        textinput.Model

	width, height int
	lastItems     int
	lastVersion   uint64
	stale         bool
	lastErr       string
}

func newModel(controller *orchestration.Controller, cfg config.Config, errs <-chan error, dial func(ctx context.Context) error) model {
	input := textinput.New()
	input.Placeholder = "tab to type a message"
	input.CharLimit = 2000

	return model{
		controller:   controller,
		view:         controller,
		speakers:     cfg.Speakers,
		errs:         errs,
		dial:         dial,
		conversation: viewport.New(80, 20),
		input:        input,
		lastItems:    -1,
		stale:        true,
	}
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tick()
}

// operation runs fn off the ui goroutine since controller operations wait for
// the controller loop.
func operation(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), operationLimit)
		defer cancel()
		return operationMsg{op: op, err: fn(ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.conversation.Width = max(20, msg.Width-sidebarWidth-4)
		m.conversation.Height = max(5, msg.Height-6)
		m.input.Width = max(10, msg.Width-4)
		m.stale = true
		return m, nil

	case tickMsg:
		m.drainErrors()
		m.refreshConversation()
		return m, tick()

	case operationMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.input.Blur()
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		return m, operation("send text", func(ctx context.Context) error {
			return m.controller.SendText(ctx, text)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case " ", "space":
		if m.controller.State() == orchestration.ConnectedRecording {
			return m, operation("end turn", m.controller.PressToTalkEnd)
		}
		speaker := m.controller.Speaker()
		return m, operation("push to talk", func(ctx context.Context) error {
			return m.controller.PressToTalkStart(ctx, speaker)
		})

	case "v":
		next := realtime.TurnModeVoiceActivity
		if m.controller.Config().TurnMode == realtime.TurnModeVoiceActivity {
			next = realtime.TurnModeManual
		}
		return m, operation("turn mode", func(ctx context.Context) error {
			return m.controller.SetTurnMode(ctx, next)
		})

	case "tab", "enter":
		cmd := m.input.Focus()
		return m, cmd

	case "r":
		if m.controller.State() != orchestration.Disconnected {
			return m, nil
		}
		m.lastErr = ""
		return m, operation("reconnect", m.dial)

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.conversation, cmd = m.conversation.Update(msg)
		return m, cmd
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		if index := int(key[0] - '1'); index < len(m.speakers) {
			m.controller.SetSpeaker(m.speakers[index])
		}
	}
	return m, nil
}

func (m *model) drainErrors() {
	for {
		select {
		case err := <-m.errs:
			m.lastErr = err.Error()
		default:
			return
		}
	}
}

// refreshConversation rebuilds the pane only when the conversation or the
// pane width changed.
func (m *model) refreshConversation() {
	version := m.view.ConversationVersion()
	if !m.stale && version == m.lastVersion {
		return
	}
	items := m.view.Summaries()
	content := renderItems(items, m.conversation.Width)
	atBottom := m.conversation.AtBottom()
	m.conversation.SetContent(content)
	if atBottom || len(items) != m.lastItems {
		m.conversation.GotoBottom()
	}
	m.lastItems = len(items)
	m.lastVersion = version
	m.stale = false
}

func renderItems(items []conversations.Summary, width int) string {
	var b strings.Builder
	for _, item := range items {
		var style lipgloss.Style
		switch item.Role {
		case conversations.RoleUser:
			style = userStyle
		case conversations.RoleAssistant:
			style = assistantStyle
		default:
			style = systemStyle
		}

		label := string(item.Role)
		if item.Type != conversations.ItemTypeMessage {
			label += " " + string(item.Type)
		}
		content := item.Content
		if content == "" && item.AudioDuration > 0 {
			content = fmt.Sprintf("(%.1fs audio)", item.AudioDuration.Seconds())
		}
		line := style.Render(label+":") + " " + content
		if !item.IsCompleted() {
			line = pendingStyle.Render(line + " …")
		}
		b.WriteString(wordwrap.String(line, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) View() string {
	state := m.controller.State()
	stateText := state.String()
	if state == orchestration.ConnectedRecording {
		stateText = recordingStyle.Render("● recording")
	}
	header := titleStyle.Render("ema-realtime") + fmt.Sprintf("  %s  mode %s  speaker %s",
		stateText, m.controller.Config().TurnMode, m.controller.Speaker())

	sidebar := lipgloss.JoinVertical(lipgloss.Left,
		"mic "+bars(m.controller.InputSpectrum()),
		"out "+bars(m.controller.OutputSpectrum()),
		"",
		titleStyle.Render("events"),
		m.recentEvents(),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.conversation.View()),
		panelStyle.Width(sidebarWidth).Render(sidebar),
	)

	footer := m.input.View()
	if m.lastErr != "" {
		footer = errorStyle.Render(m.lastErr) + "\n" + footer
	}
	help := systemStyle.Render("space talk · 1-9 speaker · v turn mode · tab type · r reconnect · ctrl+c quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer, help)
}

func (m model) recentEvents() string {
	entries := m.controller.EventLog()
	if len(entries) > eventLogLines {
		entries = entries[len(entries)-eventLogLines:]
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := fmt.Sprintf("%s %s", entry.Source, entry.Kind)
		if entry.RepeatCount > 1 {
			line += fmt.Sprintf(" x%d", entry.RepeatCount)
		}
		lines = append(lines, line)
	}
	return wordwrap.String(strings.Join(lines, "\n"), sidebarWidth-2)
}

// bars renders a spectrum as one row of block characters.
func bars(spectrum audio.Spectrum) string {
	spectrum.Values = spectrum.Decibels(spectrumFloor)
	bands := spectrum.Bands(spectrumBands)
	out := make([]rune, len(bands))
	for i, db := range bands {
		level := (db - spectrumFloor) / -spectrumFloor
		index := int(level * float64(len(barRunes)-1))
		out[i] = barRunes[min(max(index, 0), len(barRunes)-1)]
	}
	return string(out)
}
