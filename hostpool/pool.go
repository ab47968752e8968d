// Package hostpool holds the partitioned pool of docker-host clients the
// dispatcher selects from. A pool is built once from a list of
// partitions and is read-only thereafter; selection consults the
// circuit registry and an external blacklist on every call.
package hostpool

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/netresearch/dogu/circuit"
	"github.com/netresearch/dogu/daemon"
	"github.com/netresearch/dogu/logging"
)

// Unbounded is the max-running value reported for a task whose task-id
// matches no configured partition.
const Unbounded = math.MaxInt

// Logger is the narrow logging surface the pool needs.
type Logger = logging.Logger

// PartitionSpec describes one partition as read from configuration:
// an optional regex (nil matches any task-id), an ordered list of
// "host:port" identifiers, and the inclusive running-container cap for
// that partition.
type PartitionSpec struct {
	Regex      *regexp.Regexp
	Hosts      []string
	MaxRunning int
}

// ClientFactory builds a daemon.Client for one host identifier, split
// into its host and port components.
type ClientFactory func(host string, port int) (daemon.Client, error)

// Pool is the partitioned collection of docker-host clients.
type Pool struct {
	partitions []PartitionSpec
	clients    map[string]daemon.Client // keyed by "host:port"
	circuits   *circuit.Registry
	logger     Logger

	mu sync.RWMutex
}

// New builds a Pool from specs, instantiating one client per distinct
// host identifier across all partitions via factory.
func New(specs []PartitionSpec, factory ClientFactory, circuits *circuit.Registry, logger Logger) (*Pool, error) {
	p := &Pool{
		partitions: specs,
		clients:    make(map[string]daemon.Client),
		circuits:   circuits,
		logger:     logger,
	}

	for _, spec := range specs {
		for _, hostID := range spec.Hosts {
			if _, exists := p.clients[hostID]; exists {
				continue
			}
			host, port, err := SplitHostID(hostID)
			if err != nil {
				return nil, fmt.Errorf("invalid host identifier %q: %w", hostID, err)
			}
			client, err := factory(host, port)
			if err != nil {
				return nil, fmt.Errorf("create client for %s: %w", hostID, err)
			}
			p.clients[hostID] = client
		}
	}

	return p, nil
}

// SplitHostID parses a canonical "host:port" identifier.
func SplitHostID(hostID string) (string, int, error) {
	host, rawPort, ok := strings.Cut(hostID, ":")
	if !ok || host == "" {
		return "", 0, fmt.Errorf("expected host:port, got %q", hostID)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return "", 0, fmt.Errorf("expected host:port, got %q", hostID)
	}
	return host, port, nil
}

// JoinHostID is the inverse of SplitHostID.
func JoinHostID(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// GetClient implements the pool's lookup-or-select operation. When host
// is non-empty the call bypasses filtering entirely and revisits an
// already-bound execution: if the host is no longer in the pool's
// client map, the returned client is nil and the caller must treat that
// as host-unavailable.
func (p *Pool) GetClient(taskID string, host string, port int, blacklisted map[string]bool) (string, int, daemon.Client, error) {
	if host != "" {
		hostID := JoinHostID(host, port)
		p.mu.RLock()
		client := p.clients[hostID]
		p.mu.RUnlock()
		return host, port, client, nil
	}

	partition, ok := p.matchPartition(taskID)
	if !ok {
		return "", 0, nil, &NoAvailableHostsError{TaskID: taskID}
	}

	eligible := p.eligibleHosts(partition, blacklisted)
	if len(eligible) == 0 {
		return "", 0, nil, &NoAvailableHostsError{TaskID: taskID}
	}

	chosen := eligible[rand.Intn(len(eligible))]
	h, prt, err := SplitHostID(chosen)
	if err != nil {
		return "", 0, nil, err
	}

	p.mu.RLock()
	client := p.clients[chosen]
	p.mu.RUnlock()

	if p.logger != nil {
		p.logger.Debugf("hostpool: selected %s for task %s", chosen, taskID)
	}

	return h, prt, client, nil
}

// MaxRunningFor returns the matching partition's cap, or Unbounded if no
// partition matches taskID.
func (p *Pool) MaxRunningFor(taskID string) int {
	partition, ok := p.matchPartition(taskID)
	if !ok {
		return Unbounded
	}
	return partition.MaxRunning
}

// HostsForTask returns the host identifiers of the partition matching
// taskID, or nil if no partition matches. Used to scope
// running-container counts to the partition a task belongs to, per
// spec.md §4.4's "summed across the partition" wording.
func (p *Pool) HostsForTask(taskID string) []string {
	partition, ok := p.matchPartition(taskID)
	if !ok {
		return nil
	}
	return partition.Hosts
}

// AllHosts returns every host identifier known to the pool, across all
// partitions, in no particular order. Used by the fleet observer.
func (p *Pool) AllHosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hosts := make([]string, 0, len(p.clients))
	for h := range p.clients {
		hosts = append(hosts, h)
	}
	return hosts
}

// Client returns the client bound to a host identifier, or nil if the
// host isn't in the pool.
func (p *Pool) Client(hostID string) daemon.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[hostID]
}

func (p *Pool) matchPartition(taskID string) (PartitionSpec, bool) {
	for _, spec := range p.partitions {
		if spec.Regex == nil || spec.Regex.MatchString(taskID) {
			return spec, true
		}
	}
	return PartitionSpec{}, false
}

func (p *Pool) eligibleHosts(partition PartitionSpec, blacklisted map[string]bool) []string {
	eligible := make([]string, 0, len(partition.Hosts))
	for _, hostID := range partition.Hosts {
		if blacklisted[hostID] {
			continue
		}
		if p.circuits != nil && !p.circuits.Allow(hostID) {
			continue
		}
		eligible = append(eligible, hostID)
	}
	return eligible
}
