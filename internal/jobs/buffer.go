// Package jobs provides supervision of external coding-agent subprocesses:
// a concurrency-safe registry of job records, a bounded per-job output log,
// and a runner that spawns and drains subprocesses asynchronously.
package jobs

import (
	"sync"
)

// LogBuffer is a fixed-capacity ring of output lines. When full, each
// append evicts the oldest line (FIFO). This is deliberately lossy:
// bounded memory is traded for the tail of the output, which is the part
// callers actually inspect. Prevents memory exhaustion from chatty or
// runaway subprocesses.
type LogBuffer struct {
	lines []string
	cap   int
	head  int // next write position
	count int
	mu    sync.Mutex
}

// DefaultLogCap is used when a non-positive capacity is requested.
const DefaultLogCap = 4000

// NewLogBuffer creates a line buffer with the given maximum line count.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &LogBuffer{
		lines: make([]string, capacity),
		cap:   capacity,
	}
}

// Append adds a line, evicting the oldest when the buffer is full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.head] = line
	b.head = (b.head + 1) % b.cap
	if b.count < b.cap {
		b.count++
	}
}

// Snapshot returns a copy of the buffered lines, oldest first.
func (b *LogBuffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.count)
	if b.count < b.cap {
		// No wrap-around yet: lines live in [0, head).
		copy(out, b.lines[:b.count])
		return out
	}

	// Wrapped: oldest line is at head.
	n := copy(out, b.lines[b.head:])
	copy(out[n:], b.lines[:b.head])
	return out
}

// Len returns the number of buffered lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the maximum number of retained lines.
func (b *LogBuffer) Capacity() int {
	return b.cap
}
