package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/koscakluka/ema-realtime/core/archive"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/conversations"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Conversation is the read side of the controller.
type Conversation interface {
	Items() []conversations.Item
	EventLog() []events.LogEntry
}

// ClipSource serves archived item audio.
type ClipSource interface {
	Clip(ctx context.Context, itemID string) ([]byte, error)
}

type Server struct {
	conversation Conversation
	clips        ClipSource
	metrics      *observability.Metrics
	state        func() string
}

// New creates the status server. clips and state may be nil.
func New(conversation Conversation, clips ClipSource, metrics *observability.Metrics, state func() string) *Server {
	return &Server{conversation: conversation, clips: clips, metrics: metrics, state: state}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/conversation", s.handleConversation)
	r.Get("/conversation/events", s.handleEvents)
	r.Get("/conversation/{id}/audio", s.handleAudio)

	return otelhttp.NewHandler(r, "ema-realtime",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.URL.Path
		}),
	)
}

type itemResponse struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	SpeakerID  string    `json:"speaker_id,omitempty"`
	Content    string    `json:"content"`
	Transcript string    `json:"transcript,omitempty"`
	AudioMs    int64     `json:"audio_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type eventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Count     uint32    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := "unknown"
	if s.state != nil {
		state = s.state()
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": state})
}

func (s *Server) handleConversation(w http.ResponseWriter, _ *http.Request) {
	items := s.conversation.Items()
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp := itemResponse{
			ID:         item.ID,
			Role:       string(item.Role),
			Type:       string(item.Type),
			Status:     string(item.Status),
			SpeakerID:  item.SpeakerID,
			Content:    item.Content(),
			Transcript: item.Transcript,
			CreatedAt:  item.CreatedAt,
		}
		if item.Audio != nil {
			resp.AudioMs = item.Audio.Duration().Milliseconds()
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	entries := s.conversation.EventLog()
	out := make([]eventResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, eventResponse{
			Timestamp: entry.Timestamp,
			Source:    string(entry.Source),
			Kind:      entry.Kind,
			Count:     entry.RepeatCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": out})
}

// handleAudio serves the archived container, falling back to the clip held
// in memory.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.clips != nil {
		container, err := s.clips.Clip(r.Context(), id)
		switch {
		case err == nil:
			writeContainer(w, container)
			return
		case !errors.Is(err, archive.ErrNotFound):
			respondError(w, http.StatusInternalServerError, "archive_error", err.Error())
			return
		}
	}

	for _, item := range s.conversation.Items() {
		if item.ID == id && item.Audio != nil {
			writeContainer(w, audio.EncodeContainer(item.Audio.Samples, item.Audio.SampleRate, 1))
			return
		}
	}
	respondError(w, http.StatusNotFound, "not_found", "no audio for item "+id)
}

func writeContainer(w http.ResponseWriter, container []byte) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(container)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(container)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
