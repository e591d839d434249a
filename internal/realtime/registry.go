package realtime

import "sync"

// Registry holds at most one Client per user. Opening a client for a user
// that already has one replaces it; the old client is closed before Open
// returns so two connections for one user never overlap.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	opts    []Option
}

// NewRegistry creates a registry whose clients share opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		opts:    opts,
	}
}

// Open creates a disconnected client for userID, replacing any existing one.
// opts are applied after the registry defaults.
func (r *Registry) Open(userID string, opts ...Option) (*Client, error) {
	all := make([]Option, 0, len(r.opts)+len(opts))
	all = append(all, r.opts...)
	all = append(all, opts...)

	c, err := NewClient(userID, all...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.clients[userID]
	r.clients[userID] = c
	r.mu.Unlock()

	if old != nil {
		old.logger.Info("replaced by a new client for the same user")
		old.Close()
	}
	return c, nil
}

// Get returns the live client for userID.
func (r *Registry) Get(userID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[userID]
	return c, ok
}

// Remove closes and forgets the client for userID.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	c, ok := r.clients[userID]
	delete(r.clients, userID)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

// CloseAll closes every client and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
