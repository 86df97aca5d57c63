package assistant

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds the in-memory sessions of a server, keyed by session id.
type Registry struct {
	completer Completer
	persona   string
	max       int

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates a registry that keeps at most max sessions, evicting
// the oldest first. max <= 0 means unbounded.
func NewRegistry(completer Completer, persona string, max int) *Registry {
	return &Registry{
		completer: completer,
		persona:   persona,
		max:       max,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a new seeded session and returns its id.
func (r *Registry) Create() (string, *Session) {
	id := uuid.NewString()
	s := NewSession(r.completer, r.persona)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	r.order = append(r.order, id)
	for r.max > 0 && len(r.order) > r.max {
		delete(r.sessions, r.order[0])
		r.order = r.order[1:]
	}
	return id, s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
