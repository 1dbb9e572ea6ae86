package live

import (
	"sync"

	"github.com/spigell/hireguard/internal/ai"
)

// History is an append-only conversation log safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	entries []ai.Message
}

// NewHistory creates a history seeded with entries.
func NewHistory(entries ...ai.Message) *History {
	return &History{entries: append([]ai.Message(nil), entries...)}
}

func (h *History) Append(msg ai.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, msg)
}

// Entries returns a snapshot of the history.
func (h *History) Entries() []ai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ai.Message(nil), h.entries...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
