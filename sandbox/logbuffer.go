package sandbox

import (
	"strings"
	"sync"
)

// LogBuffer keeps the most recent output lines of a preview process.
// Once full, each append evicts the oldest line.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	start int
	size  int
}

// NewLogBuffer creates a buffer retaining at most capacity lines.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogLines
	}
	return &LogBuffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest one when the buffer is full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.lines)
	if b.size < capacity {
		b.lines[(b.start+b.size)%capacity] = line
		b.size++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % capacity
}

// Lines returns a copy of the retained lines, oldest first.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.size)
	for i := range b.size {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}
	return out
}

// String returns the retained lines joined by newlines.
func (b *LogBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// Clear drops every retained line.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.lines)
	b.start = 0
	b.size = 0
}

// Len reports how many lines are retained.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap reports the retention bound.
func (b *LogBuffer) Cap() int {
	return len(b.lines)
}
