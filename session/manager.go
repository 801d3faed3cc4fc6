package session

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/logger"
	"github.com/isdmx/builderbot/metrics"
	"github.com/isdmx/builderbot/sandbox"
)

// PreviewFactory builds the preview for a session rooted at dir and serving on port.
type PreviewFactory func(log *zap.Logger, dir string, port int) sandbox.Preview

// Manager owns every live session.
type Manager struct {
	logger     *zap.Logger
	config     *config.Config
	completer  llm.Completer
	metrics    *metrics.Metrics
	newPreview PreviewFactory

	mu        sync.Mutex
	sessions  map[string]*Session
	slots     []string // slot index to session id, "" when free
	defaultID string
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithPreviewFactory replaces the process supervisor used for new sessions
func WithPreviewFactory(f PreviewFactory) ManagerOption {
	return func(m *Manager) {
		m.newPreview = f
	}
}

// NewManager creates a Manager whose sessions run previews under cfg.Sandbox.Dir.
func NewManager(log *zap.Logger, cfg *config.Config, completer llm.Completer, m *metrics.Metrics, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		logger:    log,
		config:    cfg,
		completer: completer,
		metrics:   m,
		sessions:  make(map[string]*Session),
		slots:     make([]string, cfg.Sandbox.MaxSessions),
	}
	mgr.newPreview = func(l *zap.Logger, dir string, port int) sandbox.Preview {
		return sandbox.NewFromConfig(l, cfg, m, dir, port)
	}

	for _, opt := range opts {
		opt(mgr)
	}

	return mgr
}

// Create starts a new session with its own sandbox directory and port.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked()
}

func (m *Manager) createLocked() (*Session, error) {
	slot := -1
	for i, id := range m.slots {
		if id == "" {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("%w: %d sessions", ErrTooManySessions, len(m.slots))
	}

	id := uuid.NewString()
	port := m.config.Sandbox.Port + slot
	log := logger.ForSession(m.logger, id)

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		logger:     log,
		completer:  m.completer,
		preview:    m.newPreview(log, filepath.Join(m.config.Sandbox.Dir, id), port),
		metrics:    m.metrics,
		language:   m.config.Sandbox.Language,
		bindHost:   m.config.Sandbox.BindHost,
		port:       port,
		previewURL: previewURL(m.config.Preview.URL, slot, port),
		system:     m.config.LLM.SystemPrompt,
	}
	s.history = s.initialHistory()

	m.slots[slot] = id
	m.sessions[id] = s
	m.metrics.SetActiveSessions(len(m.sessions))
	log.Info("session created", zap.Int("port", port))

	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Default returns the session used by single-user surfaces, creating it on first use.
func (m *Manager) Default() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[m.defaultID]; ok {
		return s, nil
	}
	s, err := m.createLocked()
	if err != nil {
		return nil, err
	}
	m.defaultID = s.ID
	return s, nil
}

// Resolve returns the session with id, or the default session when id is empty.
func (m *Manager) Resolve(id string) (*Session, error) {
	if id == "" {
		return m.Default()
	}
	return m.Get(id)
}

// Lookup is Resolve without side effects: an empty id returns the default
// session only if it already exists.
func (m *Manager) Lookup(id string) (*Session, error) {
	if id != "" {
		return m.Get(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[m.defaultID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: no default session yet", ErrSessionNotFound)
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close stops the session's preview and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.removeLocked(id)
	m.mu.Unlock()

	s.close()
	s.logger.Info("session closed")
	return nil
}

// CloseAll stops every preview. It is safe to call more than once.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		m.removeLocked(id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.close()
		}()
	}
	wg.Wait()

	if len(sessions) > 0 {
		m.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
	}
}

func (m *Manager) removeLocked(id string) {
	delete(m.sessions, id)
	for i, slotID := range m.slots {
		if slotID == id {
			m.slots[i] = ""
		}
	}
	if m.defaultID == id {
		m.defaultID = ""
	}
	m.metrics.SetActiveSessions(len(m.sessions))
}

// previewURL keeps the configured URL for the first slot and swaps in the
// session's port for the others.
func previewURL(base string, slot, port int) string {
	if slot == 0 && base != "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("http://localhost:%d", port)
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return u.String()
}
