package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
)

func TestBarsRenderSilenceAsBlank(t *testing.T) {
	got := bars(audio.ZeroSpectrum())
	if strings.TrimSpace(got) != "" || len([]rune(got)) != spectrumBands {
		t.Fatalf("expected %d blank bars, got %q", spectrumBands, got)
	}
}

func TestBarsRenderFullScaleAsFullBlocks(t *testing.T) {
	values := make([]float64, 64)
	for i := range values {
		values[i] = 1
	}
	got := []rune(bars(audio.Spectrum{Values: values}))
	for i, r := range got {
		if r != '█' {
			t.Fatalf("expected full block at %d, got %q", i, r)
		}
	}
}

func TestRenderItemsPrefixesSpeakerAndMarksPending(t *testing.T) {
	out := renderItems([]conversations.Summary{
		{ID: "u1", Role: conversations.RoleUser, Type: conversations.ItemTypeMessage, Status: conversations.StatusCompleted, SpeakerID: "2", Content: "[2]: hello"},
		{ID: "r1", Role: conversations.RoleAssistant, Type: conversations.ItemTypeMessage, Status: conversations.StatusInProgress,
			AudioDuration: 500 * time.Millisecond},
	}, 80)

	if !strings.Contains(out, "[2]: hello") {
		t.Fatalf("expected speaker prefixed transcript, got %q", out)
	}
	if !strings.Contains(out, "(0.5s audio)") || !strings.Contains(out, "…") {
		t.Fatalf("expected pending audio-only item, got %q", out)
	}
}

type countingView struct {
	version   uint64
	summaries []conversations.Summary
	calls     int
}

func (v *countingView) Summaries() []conversations.Summary {
	v.calls++
	return v.summaries
}

func (v *countingView) ConversationVersion() uint64 { return v.version }

func TestRefreshConversationRendersOnlyOnChange(t *testing.T) {
	view := &countingView{version: 1, summaries: []conversations.Summary{
		{ID: "u1", Role: conversations.RoleUser, Type: conversations.ItemTypeMessage, Status: conversations.StatusCompleted, Content: "hello"},
	}}
	m := model{view: view, conversation: viewport.New(40, 10), lastItems: -1, stale: true}

	for range 30 {
		m.refreshConversation()
	}
	if view.calls != 1 {
		t.Fatalf("expected one snapshot for an unchanged conversation, got %d", view.calls)
	}

	view.version = 2
	m.refreshConversation()
	if view.calls != 2 {
		t.Fatalf("expected a new snapshot after a change, got %d", view.calls)
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(model)
	m.refreshConversation()
	if view.calls != 3 {
		t.Fatalf("expected a new snapshot after a resize, got %d", view.calls)
	}
	if !strings.Contains(m.conversation.View(), "hello") {
		t.Fatalf("expected rendered conversation, got %q", m.conversation.View())
	}
}
