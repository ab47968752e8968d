// Package blacklist implements the dispatcher's shared host blacklist: a
// durable set of "host:port" strings that the pool excludes from
// selection regardless of circuit-breaker state. Operators add to it by
// hand (or through an external control plane); the dispatcher only
// reads it.
package blacklist

// Key is the well-known identifier under which the blacklist set is
// stored, matching the naming convention used by the rest of this
// system's shared state.
const Key = "rq:dogu:blacklisted-hosts"

// Store is the read-through set abstraction the pool consults before
// selecting a host. Implementations must be safe for concurrent use.
type Store interface {
	// Contains reports whether host is currently blacklisted.
	Contains(host string) (bool, error)
	// Add puts host in the blacklist. Adding an already-blacklisted
	// host is a no-op.
	Add(host string) error
	// Remove takes host out of the blacklist. Removing a host that
	// isn't blacklisted is a no-op.
	Remove(host string) error
	// List returns every currently blacklisted host, in no particular
	// order.
	List() ([]string, error)
}
