// Package dispatcher orchestrates container-execution operations
// against a partitioned pool of docker hosts, routing daemon failures
// through per-host circuit breakers and translating them into the
// canonical error kinds callers rely on.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/netresearch/dogu/blacklist"
	"github.com/netresearch/dogu/circuit"
	"github.com/netresearch/dogu/daemon"
	"github.com/netresearch/dogu/daemon/domain"
	"github.com/netresearch/dogu/execution"
	"github.com/netresearch/dogu/hostpool"
	"github.com/netresearch/dogu/logging"
	"github.com/netresearch/dogu/metrics"
)

// Dispatcher is constructed once per process (or per configuration) and
// holds its own circuit registry, per the design notes: multiple
// dispatcher configurations can coexist without sharing breaker state.
type Dispatcher struct {
	Pool      *hostpool.Pool
	Circuits  *circuit.Registry
	Blacklist blacklist.Store
	Logger    logging.Logger
	Metrics   metrics.Recorder
}

// New constructs a Dispatcher. logger and rec may be nil; with a nil
// logger the dispatcher logs nothing, and a nil rec defaults to
// metrics.Noop.
func New(pool *hostpool.Pool, circuits *circuit.Registry, bl blacklist.Store, logger logging.Logger, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Dispatcher{Pool: pool, Circuits: circuits, Blacklist: bl, Logger: logger, Metrics: rec}
}

// currentBlacklist snapshots the blacklist store into the set shape the
// host pool expects.
func (d *Dispatcher) currentBlacklist() (map[string]bool, error) {
	hosts, err := d.Blacklist.List()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h] = true
	}
	d.Metrics.BlacklistedHosts(len(hosts))
	return set, nil
}

// selectForOperation implements the common dispatcher preamble: bind a
// host if none is recorded yet, or revisit the one already bound. The
// execution's metadata is updated with a fresh binding as a side
// effect; callers must not retain the returned client past a
// host-unavailable error, since the binding will have been cleared.
func (d *Dispatcher) selectForOperation(rec *execution.Record) (string, int, daemon.Client, error) {
	md := rec.Metadata()

	if md.HasHost() {
		host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
		if err != nil {
			return "", 0, nil, err
		}
		if client == nil {
			rec.ClearHost()
			return "", 0, nil, &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
		}
		return host, port, client, nil
	}

	start := time.Now()
	blset, err := d.currentBlacklist()
	if err != nil {
		return "", 0, nil, err
	}
	host, port, client, err := d.Pool.GetClient(rec.Task, "", 0, blset)
	d.Metrics.ObserveSelection(time.Since(start))
	if err != nil {
		return "", 0, nil, err
	}
	rec.BindHost(host, port)
	return host, port, client, nil
}

// invoke runs fn through host's circuit, classifying its result per
// §4.3 and clearing rec's host binding on host-unavailable.
func (d *Dispatcher) invoke(rec *execution.Record, host string, port int, fn func() error) error {
	hostID := hostpool.JoinHostID(host, port)

	if !d.Circuits.Allow(hostID) {
		rec.ClearHost()
		return &HostUnavailableError{
			Host: host, Port: port,
			Err: fmt.Errorf("Timeout not elapsed yet, circuit breaker still open"),
		}
	}

	err := fn()
	if err == nil {
		d.Circuits.RecordSuccess(hostID)
		d.Metrics.CircuitState(hostID, circuitGaugeValue(d.Circuits.State(hostID)))
		return nil
	}

	if daemon.IsConnectionError(err) {
		d.Circuits.RecordFailure(hostID)
		d.Metrics.HostUnavailable(hostID)
		d.Metrics.CircuitState(hostID, circuitGaugeValue(d.Circuits.State(hostID)))
		if d.Logger != nil {
			d.Logger.Warningf("dispatcher: host %s unavailable: %v", hostID, err)
		}
		rec.ClearHost()
		return &HostUnavailableError{Host: host, Port: port, Err: err}
	}

	// Semantic failure: propagate unchanged, no circuit effect.
	return err
}

// circuitGaugeValue maps a breaker state onto the circuit-state gauge's
// encoding (0=closed, 1=half-open, 2=open).
func circuitGaugeValue(s circuit.State) float64 {
	switch s {
	case circuit.HalfOpen:
		return 1
	case circuit.Open:
		return 2
	default:
		return 0
	}
}

// UpdateImage pulls image:tag on the execution's bound (or freshly
// selected) host.
func (d *Dispatcher) UpdateImage(ctx context.Context, rec *execution.Record, image, tag string) error {
	host, port, client, err := d.selectForOperation(rec)
	if err != nil {
		return err
	}

	return d.invoke(rec, host, port, func() error {
		return client.PullImage(ctx, image, tag)
	})
}

// Run creates and starts the execution's container on its already-bound
// host. Unlike every other operation, Run does not perform a fresh
// selection: the host must already be bound (typically by a prior
// UpdateImage call), otherwise it fails with InvalidStateError and
// touches no metadata at all.
func (d *Dispatcher) Run(ctx context.Context, rec *execution.Record, image, tag string, command, environment []string) error {
	md := rec.Metadata()
	if !md.HasHost() {
		return &InvalidStateError{Message: "can't run job without docker_host and docker_port in execution metadata"}
	}

	host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
	if err != nil {
		return err
	}
	if client == nil {
		rec.ClearHost()
		return &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
	}

	return d.invoke(rec, host, port, func() error {
		id, runErr := client.RunContainer(ctx, daemon.RunOptions{
			Image:       fmt.Sprintf("%s:%s", image, tag),
			Name:        rec.ContainerName(),
			Command:     command,
			Environment: environment,
		})
		if runErr != nil {
			return runErr
		}
		rec.SetContainerID(id)
		return nil
	})
}

// GetResult reads the bound container's current status and builds a
// JobResult.
func (d *Dispatcher) GetResult(ctx context.Context, rec *execution.Record) (execution.JobResult, error) {
	md := rec.Metadata()
	if !md.HasContainer() {
		return execution.JobResult{}, &InvalidStateError{Message: "can't get result without a container_id in execution metadata"}
	}

	host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
	if err != nil {
		return execution.JobResult{}, err
	}
	if client == nil {
		rec.ClearHost()
		return execution.JobResult{}, &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
	}

	var container daemon.Container
	invokeErr := d.invoke(rec, host, port, func() error {
		c, inspectErr := client.InspectContainer(ctx, md.ContainerID)
		if inspectErr != nil {
			return inspectErr
		}
		container = c
		return nil
	})
	if invokeErr != nil {
		return execution.JobResult{}, invokeErr
	}

	var stdout, stderr string
	if logs, logsErr := client.Logs(ctx, md.ContainerID, domain.LogOptions{ShowStdout: true, ShowStderr: false}); logsErr == nil {
		stdout = readAllString(logs)
	}
	if logs, logsErr := client.Logs(ctx, md.ContainerID, domain.LogOptions{ShowStdout: false, ShowStderr: true}); logsErr == nil {
		stderr = readAllString(logs)
	}

	result := execution.JobResult{
		Status:    execution.NormalizeStatus(container.Status),
		ExitCode:  container.State.ExitCode,
		Log:       stdout,
		Error:     execution.ComposeError(container.CustomError, stderr),
		StartedAt: container.State.StartedAt,
	}
	if !container.State.FinishedAt.IsZero() {
		finished := container.State.FinishedAt
		result.FinishedAt = &finished
	}
	return result, nil
}

// StopJob stops the execution's container, returning false without
// touching the daemon if no container has been recorded.
func (d *Dispatcher) StopJob(ctx context.Context, rec *execution.Record) (bool, error) {
	md := rec.Metadata()
	if !md.HasContainer() {
		return false, nil
	}

	host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
	if err != nil {
		return false, err
	}
	if client == nil {
		rec.ClearHost()
		return false, &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
	}

	err = d.invoke(rec, host, port, func() error {
		return client.StopContainer(ctx, md.ContainerID)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkAsDone renames the execution's container from its running name to
// its defunct name, changing its lifecycle tag without removing it.
func (d *Dispatcher) MarkAsDone(ctx context.Context, rec *execution.Record) error {
	md := rec.Metadata()
	if !md.HasContainer() {
		return &InvalidStateError{Message: "can't mark as done without a container_id in execution metadata"}
	}

	host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
	if err != nil {
		return err
	}
	if client == nil {
		rec.ClearHost()
		return &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
	}

	return d.invoke(rec, host, port, func() error {
		return client.RenameContainer(ctx, md.ContainerID, rec.DefunctContainerName())
	})
}

// RemovedRecord is one entry in the aggregate result of RemoveDone.
type RemovedRecord struct {
	Host  string
	Port  int
	ID    string
	Name  string
	Image string
}

// RemoveDone enumerates every client in the pool, removing containers
// whose name starts with the defunct prefix. Per-host failures are
// skipped so the operation proceeds across the remaining hosts.
func (d *Dispatcher) RemoveDone(ctx context.Context) []RemovedRecord {
	const defunctPrefix = "defunct-fastlane-job-"

	var removed []RemovedRecord
	for _, hostID := range d.Pool.AllHosts() {
		client := d.Pool.Client(hostID)
		if client == nil {
			continue
		}
		host, port, splitErr := hostpool.SplitHostID(hostID)
		if splitErr != nil {
			continue
		}

		containers, err := client.ListContainers(ctx, domain.ListOptions{All: true})
		if err != nil {
			if d.Logger != nil {
				d.Logger.Warningf("dispatcher: remove-done: list on %s failed: %v", hostID, err)
			}
			continue
		}

		for _, c := range containers {
			if !strings.HasPrefix(c.Name, defunctPrefix) {
				continue
			}
			if err := client.RemoveContainer(ctx, c.ID, domain.RemoveOptions{Force: true}); err != nil {
				if d.Logger != nil {
					d.Logger.Warningf("dispatcher: remove-done: remove %s on %s failed: %v", c.ID, hostID, err)
				}
				continue
			}
			removed = append(removed, RemovedRecord{Host: host, Port: port, ID: c.ID, Name: c.Name, Image: c.Image})
		}
	}
	return removed
}

// GetStreamingLogs opens a streaming reader over the execution's
// container logs. Opening the stream is subject to the same circuit
// handling as every other call.
func (d *Dispatcher) GetStreamingLogs(ctx context.Context, rec *execution.Record) (interface{ Read([]byte) (int, error) }, error) {
	md := rec.Metadata()
	if !md.HasContainer() {
		return nil, &InvalidStateError{Message: "can't stream logs without a container_id in execution metadata"}
	}

	host, port, client, err := d.Pool.GetClient(rec.Task, md.DockerHost, md.DockerPort, nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		rec.ClearHost()
		return nil, &HostUnavailableError{Host: host, Port: port, Err: fmt.Errorf("host removed from pool")}
	}

	var reader interface{ Read([]byte) (int, error) }
	invokeErr := d.invoke(rec, host, port, func() error {
		r, logsErr := client.Logs(ctx, md.ContainerID, domain.LogOptions{ShowStdout: true, ShowStderr: true, Follow: true})
		if logsErr != nil {
			return logsErr
		}
		reader = r
		return nil
	})
	if invokeErr != nil {
		return nil, invokeErr
	}
	return reader, nil
}

// ValidateMaxRunningExecutions reports whether another container may be
// started for taskID without exceeding its partition's cap. A task-id
// matching no partition is treated as unbounded.
func (d *Dispatcher) ValidateMaxRunningExecutions(ctx context.Context, taskID string) (bool, error) {
	const runningPrefix = "fastlane-job-"

	max := d.Pool.MaxRunningFor(taskID)
	if max == hostpool.Unbounded {
		return true, nil
	}

	count := 0
	for _, hostID := range d.Pool.HostsForTask(taskID) {
		client := d.Pool.Client(hostID)
		if client == nil {
			continue
		}
		containers, err := client.ListContainers(ctx, domain.ListOptions{All: true})
		if err != nil {
			continue
		}
		for _, c := range containers {
			if strings.HasPrefix(c.Name, runningPrefix) {
				count++
			}
		}
	}

	return count < max, nil
}

// GetBlacklistedHosts is a read-through to the blacklist store.
func (d *Dispatcher) GetBlacklistedHosts() (map[string]bool, error) {
	return d.currentBlacklist()
}

// GetCircuit exposes a host's circuit breaker for operator tooling and
// tests.
func (d *Dispatcher) GetCircuit(hostID string) *circuit.Breaker {
	return d.Circuits.Get(hostID)
}

func readAllString(r interface {
	Read([]byte) (int, error)
	Close() error
}) string {
	defer r.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf)
}
