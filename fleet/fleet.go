// Package fleet aggregates a read-only snapshot of every host in a
// dispatcher's pool: which are available, which are excluded and why,
// and which containers are currently running where. Unlike the
// dispatcher, the observer never raises — a per-host failure degrades
// into an unavailable entry instead of failing the whole snapshot.
package fleet

import (
	"context"
	"strings"

	"github.com/netresearch/dogu/circuit"
	"github.com/netresearch/dogu/daemon"
	"github.com/netresearch/dogu/daemon/domain"
	"github.com/netresearch/dogu/hostpool"
)

const runningPrefix = "fastlane-job-"

// HostStatus is one pool client's disposition in a snapshot.
type HostStatus struct {
	Host        string
	Port        int
	Available   bool
	Blacklisted bool
	Circuit     circuit.State
	Error       string
}

// RunningContainer is one entry in a snapshot's running section.
type RunningContainer struct {
	Host        string
	Port        int
	ContainerID string
}

// Snapshot is the aggregate result of Observer.GetRunningContainers.
type Snapshot struct {
	Available   []HostStatus
	Unavailable []HostStatus
	Running     []RunningContainer
}

// Observer reads across every client in a host pool to build a
// Snapshot. It holds no state of its own beyond references to the pool
// and circuit registry it reports on.
type Observer struct {
	Pool     *hostpool.Pool
	Circuits *circuit.Registry
}

// New constructs an Observer over pool, reporting circuit state from
// circuits.
func New(pool *hostpool.Pool, circuits *circuit.Registry) *Observer {
	return &Observer{Pool: pool, Circuits: circuits}
}

// GetRunningContainers classifies every host in the pool per the
// precedence blacklisted -> circuit-open -> listing-failure ->
// available, then lists running containers on every available host.
func (o *Observer) GetRunningContainers(ctx context.Context, blacklisted map[string]bool) Snapshot {
	var snap Snapshot

	for _, hostID := range o.Pool.AllHosts() {
		host, port, err := hostpool.SplitHostID(hostID)
		if err != nil {
			continue
		}
		state := o.Circuits.State(hostID)

		switch {
		case blacklisted[hostID]:
			snap.Unavailable = append(snap.Unavailable, HostStatus{
				Host: host, Port: port, Blacklisted: true, Circuit: state,
				Error: "server is blacklisted",
			})

		case state == circuit.Open:
			snap.Unavailable = append(snap.Unavailable, HostStatus{
				Host: host, Port: port, Circuit: state,
				Error: "Timeout not elapsed yet, circuit breaker still open",
			})

		default:
			client := o.Pool.Client(hostID)
			containers, listErr := client.ListContainers(ctx, domain.ListOptions{All: false})
			if listErr != nil {
				snap.Unavailable = append(snap.Unavailable, HostStatus{
					Host: host, Port: port, Circuit: state, Error: listErr.Error(),
				})
				continue
			}

			snap.Available = append(snap.Available, HostStatus{
				Host: host, Port: port, Available: true, Circuit: state,
			})
			snap.Running = append(snap.Running, runningRecords(host, port, containers)...)
		}
	}

	return snap
}

func runningRecords(host string, port int, containers []daemon.Container) []RunningContainer {
	var out []RunningContainer
	for _, c := range containers {
		if strings.HasPrefix(c.Name, runningPrefix) {
			out = append(out, RunningContainer{Host: host, Port: port, ContainerID: c.ID})
		}
	}
	return out
}
