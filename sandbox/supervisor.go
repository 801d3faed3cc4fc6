package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/builderbot/metrics"
)

// maxLineBytes truncates pathological output lines before they reach the buffer.
const maxLineBytes = 16 * 1024

// Config holds configuration for a Supervisor
type Config struct {
	Dir          string
	Language     string
	Interpreter  string
	Port         int
	LogLines     int
	LogFile      bool
	StopTimeout  time.Duration
	ProcessGroup bool
	Env          map[string]string
}

// Handle is the owned preview process.
type Handle struct {
	PID       int
	StartedAt time.Time

	process    *os.Process
	group      bool
	output     *os.File
	logFile    io.WriteCloser
	done       chan struct{} // closed once the exit status has been observed
	readerDone chan struct{}
	exitErr    error
}

// Exited reports whether the exit status of the process has been observed.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// waitProber trusts the observed exit status first and falls back to a
// null-signal probe for processes that vanished without being reaped.
type waitProber struct{}

// IsAlive implements Prober.
func (waitProber) IsAlive(h *Handle) bool {
	if h.Exited() {
		return false
	}
	return probe(h.process)
}

// Supervisor owns at most one preview process running generated code.
type Supervisor struct {
	logger  *zap.Logger
	outLog  *zap.Logger
	config  *Config
	fs      FileSystem
	prober  Prober
	metrics *metrics.Metrics
	logs    *LogBuffer

	mu        sync.Mutex // serializes Start/Stop/IsRunning
	owned     *Handle
	source    string
	releasing sync.WaitGroup
}

// SupervisorOption defines a functional option for Supervisor
type SupervisorOption func(*Supervisor)

// WithFileSystem sets the FileSystem for Supervisor
func WithFileSystem(fs FileSystem) SupervisorOption {
	return func(s *Supervisor) {
		s.fs = fs
	}
}

// WithProber sets the liveness Prober for Supervisor
func WithProber(p Prober) SupervisorOption {
	return func(s *Supervisor) {
		s.prober = p
	}
}

// WithMetrics records preview lifecycle events
func WithMetrics(m *metrics.Metrics) SupervisorOption {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithOutputLogger mirrors captured output lines at debug level
func WithOutputLogger(l *zap.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.outLog = l
	}
}

// NewSupervisor creates a Supervisor with default implementations and optional interfaces
func NewSupervisor(logger *zap.Logger, config *Config, opts ...SupervisorOption) *Supervisor {
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	s := &Supervisor{
		logger: logger,
		outLog: zap.NewNop(),
		config: config,
		fs:     RealFileSystem{},
		prober: waitProber{},
		logs:   NewLogBuffer(config.LogLines),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SourcePath returns the fixed path the artifact is written to.
func (s *Supervisor) SourcePath() string {
	name, err := GetCodeFileName(s.config.Language)
	if err != nil {
		name = FilenamePython
	}
	return filepath.Join(s.config.Dir, name)
}

// LogPath returns the fixed path of the output log file variant.
func (s *Supervisor) LogPath() string {
	return filepath.Join(s.config.Dir, FilenameLog)
}

// Start replaces the running preview with one executing source. Any owned
// process is stopped and fully reaped before the new one is spawned.
func (s *Supervisor) Start(source string) error {
	if strings.TrimSpace(source) == "" {
		return ErrEmptySource
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.releasing.Wait()

	codeFile, err := GetCodeFileName(s.config.Language)
	if err != nil {
		return fmt.Errorf("invalid language: %w", err)
	}
	args, err := GetRunArgs(s.config.Language, s.config.Interpreter, codeFile)
	if err != nil {
		return fmt.Errorf("invalid language: %w", err)
	}

	if err := s.fs.MkdirAll(s.config.Dir, DirPermission); err != nil {
		return fmt.Errorf("failed to create sandbox dir: %w", err)
	}
	if err := s.fs.WriteFile(s.SourcePath(), []byte(source), FilePermission); err != nil {
		return fmt.Errorf("failed to write source: %w", err)
	}
	s.source = source
	s.logs.Clear()

	var logFile io.WriteCloser
	if s.config.LogFile {
		if logFile, err = s.fs.Create(s.LogPath()); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	h, err := s.spawn(args, logFile)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		s.metrics.SpawnFailed()
		s.logger.Error("preview spawn failed", zap.Strings("argv", args), zap.Error(err))
		return err
	}

	s.owned = h
	s.metrics.PreviewStarted()
	s.logger.Info("preview started",
		zap.Int("pid", h.PID),
		zap.String("source", s.SourcePath()),
		zap.Int("port", s.config.Port))

	return nil
}

func (s *Supervisor) spawn(args []string, logFile io.WriteCloser) (*Handle, error) {
	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // Running generated code is intended functionality
	cmd.Dir = s.config.Dir
	cmd.Stdin = nil
	cmd.SysProcAttr = sysProcAttr(s.config.ProcessGroup)

	cmd.Env = os.Environ()
	for key, value := range GetEnvironmentVariables(s.config.Language) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	for key, value := range s.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	// stdout and stderr share one pipe so the buffer sees them interleaved.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("failed to start preview process: %w", err)
	}
	_ = w.Close()

	h := &Handle{
		PID:        cmd.Process.Pid,
		StartedAt:  time.Now(),
		process:    cmd.Process,
		group:      s.config.ProcessGroup,
		output:     r,
		logFile:    logFile,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	go func() {
		h.exitErr = cmd.Wait()
		s.logger.Info("preview process exited", zap.Int("pid", h.PID), zap.NamedError("status", h.exitErr))
		close(h.done)
	}()
	go s.drain(h)

	return h, nil
}

// drain copies the combined output of h into the log buffer, line by line,
// until the pipe closes.
func (s *Supervisor) drain(h *Handle) {
	defer close(h.readerDone)

	br := bufio.NewReader(h.output)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			if len(line) > maxLineBytes {
				line = line[:maxLineBytes]
			}
			s.logs.Append(line)
			s.metrics.LogLine()
			s.outLog.Debug(line, zap.Int("pid", h.PID))
			if h.logFile != nil {
				_, _ = io.WriteString(h.logFile, line+"\n")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("preview output reader stopped", zap.Int("pid", h.PID), zap.Error(err))
			}
			return
		}
	}
}

// Stop terminates the owned process, escalating to a kill after the stop
// timeout. It is a no-op when nothing is owned.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	h := s.owned
	if h == nil {
		return
	}
	s.owned = nil

	mode := metrics.StopGraceful
	if h.Exited() {
		mode = metrics.StopExited
	} else if err := terminate(h.process, h.group); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("preview terminate signal failed", zap.Int("pid", h.PID), zap.Error(err))
	}

	select {
	case <-h.done:
	case <-time.After(s.config.StopTimeout):
		mode = metrics.StopForced
		s.logger.Warn("preview ignored terminate, killing", zap.Int("pid", h.PID), zap.Duration("timeout", s.config.StopTimeout))
		if err := kill(h.process, h.group); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Error("preview kill failed", zap.Int("pid", h.PID), zap.Error(err))
		}
		select {
		case <-h.done:
		case <-time.After(s.config.StopTimeout):
			s.logger.Error("preview not reaped after kill", zap.Int("pid", h.PID))
		}
	}

	reapGroup(h.process, h.group)
	s.release(h)
	s.metrics.PreviewStopped(mode)
	s.logger.Info("preview stopped", zap.Int("pid", h.PID), zap.String("mode", mode))
}

// release closes the output side of h once its reader has drained, or after
// the stop timeout if something else still holds the pipe open.
func (s *Supervisor) release(h *Handle) {
	select {
	case <-h.readerDone:
	case <-time.After(s.config.StopTimeout):
	}
	_ = h.output.Close()
	<-h.readerDone
	if h.logFile != nil {
		_ = h.logFile.Close()
	}
}

// IsRunning reports whether the owned process has not exited. A process that
// died on its own is released and no longer owned.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.owned
	if h == nil {
		return false
	}
	if s.prober.IsAlive(h) {
		return true
	}

	s.owned = nil
	s.logger.Info("preview no longer alive", zap.Int("pid", h.PID))
	// The prober may be wrong about a live process; make sure nothing is orphaned.
	if !h.Exited() {
		_ = kill(h.process, h.group)
	}
	s.releasing.Add(1)
	go func() {
		defer s.releasing.Done()
		select {
		case <-h.done:
		case <-time.After(s.config.StopTimeout):
		}
		reapGroup(h.process, h.group)
		s.release(h)
		s.metrics.PreviewStopped(metrics.StopExited)
	}()

	return false
}

// Logs returns the retained output lines, oldest first.
func (s *Supervisor) Logs() []string {
	return s.logs.Lines()
}

// LogText returns the retained output as one string.
func (s *Supervisor) LogText() string {
	return s.logs.String()
}

// ClearLogs empties the log buffer without touching the process.
func (s *Supervisor) ClearLogs() {
	s.logs.Clear()
}

// Source returns the artifact most recently written by Start.
func (s *Supervisor) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Status returns a snapshot of the preview state.
func (s *Supervisor) Status() Status {
	running := s.IsRunning()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    running,
		SourcePath: s.SourcePath(),
		Port:       s.config.Port,
		LogLines:   s.logs.Len(),
	}
	if running && s.owned != nil {
		st.PID = s.owned.PID
		st.StartedAt = s.owned.StartedAt
	}
	return st
}
