package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrEmptySource is returned by Start when there is no code to run.
var ErrEmptySource = errors.New("sandbox: source text is empty")

// Preview is the contract the chat layer uses to drive a live preview.
type Preview interface {
	Start(source string) error
	Stop()
	IsRunning() bool
	Logs() []string
	ClearLogs()
	Status() Status
	Source() string
}

// Status is a point-in-time view of the preview process.
type Status struct {
	Running    bool      `json:"running"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	SourcePath string    `json:"source_path"`
	Port       int       `json:"port,omitempty"`
	LogLines   int       `json:"log_lines"`
}

// Prober answers the liveness question for an owned process.
type Prober interface {
	IsAlive(h *Handle) bool
}

// FileSystem defines the file operations the supervisor performs in its sandbox directory
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	Create(filename string) (io.WriteCloser, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

// MkdirAll wraps os.MkdirAll.
func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile wraps os.WriteFile.
func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

// ReadFile wraps os.ReadFile.
func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Create wraps os.Create.
func (RealFileSystem) Create(filename string) (io.WriteCloser, error) {
	return os.Create(filename)
}

// LanguageName constants
const (
	LanguagePython = "python"
	LanguageNodeJS = "nodejs"
	LanguageShell  = "shell"
)

// File permission and buffer constants
const (
	DirPermission      = 0o755
	FilePermission     = 0o600
	DefaultLogLines    = 100
	DefaultStopTimeout = 2 * time.Second
)

// Filename constants
const (
	FilenamePython = "app.py"
	FilenameNodeJS = "app.js"
	FilenameShell  = "app.sh"
	FilenameLog    = "app.log"
)

// GetCodeFileName returns the fixed artifact filename for a language
func GetCodeFileName(language string) (string, error) {
	switch language {
	case LanguagePython:
		return FilenamePython, nil
	case LanguageNodeJS:
		return FilenameNodeJS, nil
	case LanguageShell:
		return FilenameShell, nil
	default:
		return "", fmt.Errorf("unsupported language: %s", language)
	}
}

// GetRunArgs returns the argv that executes file with output buffering disabled.
// An empty interpreter selects the language default.
func GetRunArgs(language, interpreter, file string) ([]string, error) {
	switch language {
	case LanguagePython:
		if interpreter == "" {
			interpreter = "python3"
		}
		return []string{interpreter, "-u", file}, nil
	case LanguageNodeJS:
		if interpreter == "" {
			interpreter = "node"
		}
		return []string{interpreter, file}, nil
	case LanguageShell:
		if interpreter == "" {
			interpreter = "sh"
		}
		return []string{interpreter, file}, nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
}

// GetEnvironmentVariables returns extra variables that keep a language runtime from buffering output
func GetEnvironmentVariables(language string) map[string]string {
	switch language {
	case LanguagePython:
		return map[string]string{"PYTHONUNBUFFERED": "1"}
	default:
		return map[string]string{}
	}
}
