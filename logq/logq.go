// Package logq keeps a bounded queue of recent diagnostic log lines.
//
// A [Buffer] plugs into zerolog as an extra writer; when a protocol error is
// raised, the buffered lines are attached to it so post-mortem debugging does
// not depend on the caller having enabled verbose logging sinks.
package logq

import (
	"strings"
	"sync"

	"github.com/eapache/queue"
)

const DefaultCapacity = 32

// Buffer is an io.Writer retaining the most recent lines written to it.
// zerolog emits one line per event, so each Write is one line.
type Buffer struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{q: queue.New(), capacity: capacity}
}

func (b *Buffer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line == "" {
		return len(p), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.q.Add(line)
	for b.q.Length() > b.capacity {
		b.q.Remove()
	}
	return len(p), nil
}

// Lines returns the retained lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, b.q.Length())
	for i := 0; i < b.q.Length(); i++ {
		out = append(out, b.q.Get(i).(string))
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}
