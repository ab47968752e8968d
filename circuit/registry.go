package circuit

import "sync"

// Registry lazily creates and holds one Breaker per host, so the pool and
// dispatcher never need to pre-enumerate hosts before they can be guarded.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers all share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for host, creating it in the Closed state on
// first use.
func (r *Registry) Get(host string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[host]
	if !ok {
		b = New(r.cfg)
		r.breakers[host] = b
	}
	return b
}

// Allow is a convenience wrapper around Get(host).Allow().
func (r *Registry) Allow(host string) bool {
	return r.Get(host).Allow()
}

// RecordSuccess is a convenience wrapper around Get(host).RecordSuccess().
func (r *Registry) RecordSuccess(host string) {
	r.Get(host).RecordSuccess()
}

// RecordFailure is a convenience wrapper around Get(host).RecordFailure().
func (r *Registry) RecordFailure(host string) {
	r.Get(host).RecordFailure()
}

// Open forces host's breaker into the Open state, creating it first if
// necessary. Operator/test convenience wrapper around Get(host).Open().
func (r *Registry) Open(host string) {
	r.Get(host).Open()
}

// HalfOpen forces host's breaker into the HalfOpen state, creating it
// first if necessary.
func (r *Registry) HalfOpen(host string) {
	r.Get(host).HalfOpen()
}

// Close forces host's breaker into the Closed state, creating it first
// if necessary.
func (r *Registry) Close(host string) {
	r.Get(host).Close()
}

// State reports the state of host's breaker without creating one if the
// host has never been seen before.
func (r *Registry) State(host string) State {
	r.mu.Lock()
	b, ok := r.breakers[host]
	r.mu.Unlock()
	if !ok {
		return Closed
	}
	return b.State()
}

// Hosts returns every host with a materialized breaker, regardless of
// state.
func (r *Registry) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := make([]string, 0, len(r.breakers))
	for h := range r.breakers {
		hosts = append(hosts, h)
	}
	return hosts
}
