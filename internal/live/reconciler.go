package live

import (
	"strings"
	"sync"
	"time"

	"github.com/spigell/hireguard/internal/ai"
)

// ReconcilerState is the accumulation state of a Reconciler.
type ReconcilerState int

const (
	StateIdle ReconcilerState = iota
	StateAccumulating
)

func (s ReconcilerState) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// Reconciler accumulates streamed transcript deltas for one speaker and
// commits the finished turn to a History. Deltas are concatenated in the
// order they are appended.
type Reconciler struct {
	role    ai.Role
	history *History

	mu    sync.Mutex
	state ReconcilerState
	buf   strings.Builder
}

// NewReconciler creates a reconciler writing role entries into history.
func NewReconciler(role ai.Role, history *History) *Reconciler {
	return &Reconciler{role: role, history: history}
}

// Append adds a delta to the current turn and returns the live text.
func (r *Reconciler) Append(delta string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateIdle {
		r.buf.Reset()
		r.state = StateAccumulating
	}
	r.buf.WriteString(delta)
	return r.buf.String()
}

// Live returns the uncommitted text of the current turn.
func (r *Reconciler) Live() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *Reconciler) State() ReconcilerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Commit ends the current turn. A non-empty turn is appended to the history
// verbatim and returned; an empty turn commits nothing. The reconciler is idle after
// Commit either way.
func (r *Reconciler) Commit(now time.Time) (ai.Message, bool) {
	r.mu.Lock()
	content := r.buf.String()
	r.buf.Reset()
	r.state = StateIdle
	r.mu.Unlock()

	if content == "" {
		return ai.Message{}, false
	}

	msg := ai.Message{Role: r.role, Content: content, Timestamp: now}
	if r.history != nil {
		r.history.Append(msg)
	}
	return msg, true
}
