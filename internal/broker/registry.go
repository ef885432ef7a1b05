package broker

import "sync"

// Registry is the process-wide map from broker id to live session handle.
//
// It is the single authority on session existence: Insert refusing a
// duplicate id is what guarantees at most one session per broker, so no
// other component may hold handles outside it. The registry owns no
// business logic.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Handle),
	}
}

// Insert registers a handle under a broker id.
// Returns ErrAlreadyRegistered when the id already holds a handle; when
// concurrent connect attempts race, exactly one Insert succeeds.
func (r *Registry) Insert(brokerID string, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[brokerID]; exists {
		return ErrAlreadyRegistered
	}
	r.sessions[brokerID] = h
	return nil
}

// Get returns the handle for a broker id.
// Returns ErrNoSession when the broker has no live session; callers treat
// that as an ordinary state, not a retryable fault.
func (r *Registry) Get(brokerID string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.sessions[brokerID]
	if !exists {
		return nil, ErrNoSession
	}
	return h, nil
}

// Remove deletes the handle for a broker id. Removing an absent id is a
// no-op.
func (r *Registry) Remove(brokerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, brokerID)
}

// Count returns the number of live sessions. Used by the health check.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the broker ids with live sessions.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
