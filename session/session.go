package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/metrics"
	"github.com/isdmx/builderbot/sandbox"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrNoCodeBlock is returned when a preview is requested before any code exists.
	ErrNoCodeBlock = errors.New("session: no code to preview")
	// ErrTooManySessions is returned when every preview port is taken.
	ErrTooManySessions = errors.New("session: session limit reached")
	// ErrSessionClosed is returned when a session is used after it was closed.
	ErrSessionClosed = errors.New("session: closed")
)

// Chat outcomes recorded in metrics.
const (
	OutcomeUpdated       = "updated"
	OutcomeNoCode        = "no_code"
	OutcomeFailed        = "failed"
	OutcomePreviewFailed = "preview_failed"
)

// Reply is the result of one chat turn.
type Reply struct {
	Text        string `json:"text"`
	CodeUpdated bool   `json:"code_updated"`
	Rebound     bool   `json:"rebound,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// Summary describes a session without exposing its conversation.
type Summary struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	Turns      int            `json:"turns"`
	HasCode    bool           `json:"has_code"`
	PreviewURL string         `json:"preview_url"`
	Preview    sandbox.Status `json:"preview"`
}

// Session is one conversation and the preview it drives.
type Session struct {
	ID        string
	CreatedAt time.Time

	logger     *zap.Logger
	completer  llm.Completer
	preview    sandbox.Preview
	metrics    *metrics.Metrics
	language   string
	bindHost   string
	port       int
	previewURL string
	system     string

	turn sync.Mutex // one model round-trip at a time

	mu       sync.Mutex // also held across preview.Start so close cannot interleave
	history  []llm.Message
	artifact string
	closed   bool
}

func (s *Session) initialHistory() []llm.Message {
	if s.system == "" {
		return nil
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: s.system}}
}

// Send runs one chat turn. When the reply carries code, the artifact is
// replaced and the preview restarted; a restart failure is returned together
// with the reply and the conversation is kept.
func (s *Session) Send(ctx context.Context, prompt string) (*Reply, error) {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: prompt})
	history := append([]llm.Message(nil), s.history...)
	s.mu.Unlock()

	text, err := s.completer.Complete(ctx, history)
	if err != nil {
		s.mu.Lock()
		s.history = s.history[:len(s.history)-1]
		s.mu.Unlock()
		s.metrics.ChatRequest(OutcomeFailed)
		s.logger.Error("chat completion failed", zap.Error(err))
		return nil, fmt.Errorf("failed to get reply: %w", err)
	}

	s.mu.Lock()
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: text})
	s.mu.Unlock()

	reply := &Reply{Text: text, PreviewURL: s.previewURL}

	code, ok := llm.ExtractCode(text, s.language)
	if !ok {
		s.metrics.ChatRequest(OutcomeNoCode)
		s.logger.Debug("reply carries no code block, preview left as is")
		return reply, nil
	}

	code, reply.Rebound = llm.EnsureBind(code, s.bindHost, s.port, s.language)
	if reply.Rebound {
		s.logger.Info("rewrote bind address of generated code", zap.String("host", s.bindHost), zap.Int("port", s.port))
	}
	reply.CodeUpdated = true

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.metrics.ChatRequest(OutcomePreviewFailed)
		s.logger.Info("session closed while waiting for the reply, preview not started")
		return reply, fmt.Errorf("failed to restart preview: %w", ErrSessionClosed)
	}
	s.artifact = code
	if err := s.preview.Start(code); err != nil {
		s.metrics.ChatRequest(OutcomePreviewFailed)
		return reply, fmt.Errorf("failed to restart preview: %w", err)
	}

	s.metrics.ChatRequest(OutcomeUpdated)
	return reply, nil
}

// StartPreview (re)starts the preview with code, or with the current artifact
// when code is empty.
func (s *Session) StartPreview(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if code == "" {
		code = s.artifact
	} else {
		code, _ = llm.EnsureBind(code, s.bindHost, s.port, s.language)
	}
	if code == "" {
		return ErrNoCodeBlock
	}

	s.artifact = code
	return s.preview.Start(code)
}

// History returns a copy of the conversation, system prompt first.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Artifact returns the current generated source, empty before the first code reply.
func (s *Session) Artifact() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Preview returns the preview driven by this session.
func (s *Session) Preview() sandbox.Preview {
	return s.preview
}

// PreviewURL returns where the running preview can be reached.
func (s *Session) PreviewURL() string {
	return s.previewURL
}

// Reset stops the preview and starts the conversation over.
func (s *Session) Reset() {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.preview.Stop()

	s.mu.Lock()
	s.history = s.initialHistory()
	s.artifact = ""
	s.mu.Unlock()

	s.logger.Info("session reset")
}

// Summary returns a snapshot of the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	turns := 0
	for _, m := range s.history {
		if m.Role == llm.RoleUser {
			turns++
		}
	}
	hasCode := s.artifact != ""
	s.mu.Unlock()

	return Summary{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Turns:      turns,
		HasCode:    hasCode,
		PreviewURL: s.previewURL,
		Preview:    s.preview.Status(),
	}
}

// close marks the session closed and stops its preview. A Send still waiting
// on the model will not start a preview afterwards.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.preview.Stop()
}
