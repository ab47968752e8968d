// Package execution defines the mutable job-execution record the
// dispatcher reads and writes as it binds a task to a docker host and
// tracks its container.
package execution

import (
	"sync"

	"github.com/google/uuid"
)

// Metadata holds the dispatcher-owned fields of an execution record
// plus an open extension map for caller-defined fields the dispatcher
// never touches. This is the typed stand-in for the free-form metadata
// bag described in the design notes: only DockerHost, DockerPort and
// ContainerID are ever read or written by the dispatcher.
type Metadata struct {
	DockerHost  string
	DockerPort  int
	ContainerID string

	Extra map[string]string
}

// HasHost reports whether a host/port binding is currently recorded.
func (m Metadata) HasHost() bool {
	return m.DockerHost != "" && m.DockerPort != 0
}

// HasContainer reports whether a container ID is currently recorded.
// It checks only ContainerID: ClearHost leaves the container ID in
// place, so a true result does not imply HasHost.
func (m Metadata) HasContainer() bool {
	return m.ContainerID != ""
}

// Record is one attempt at running a job. It is single-writer by
// contract — the job scheduler that owns an execution is expected to
// serialize calls to the dispatcher for that execution — so the mutex
// here only guards against concurrent reads (e.g. a Metadata call
// while another goroutine dispatches), not against genuinely
// concurrent writers.
type Record struct {
	Task        string
	JobID       string
	ExecutionID string

	mu       sync.Mutex
	metadata Metadata
}

// New creates a Record with empty metadata.
func New(task, jobID, executionID string) *Record {
	return &Record{
		Task:        task,
		JobID:       jobID,
		ExecutionID: executionID,
		metadata:    Metadata{Extra: make(map[string]string)},
	}
}

// NewWithGeneratedID creates a Record whose ExecutionID is a fresh
// random UUID, for callers (the demo entrypoint, tests) that don't
// already have an execution ID from the job scheduler.
func NewWithGeneratedID(task, jobID string) *Record {
	return New(task, jobID, uuid.NewString())
}

// Metadata returns a copy of the record's current metadata.
func (r *Record) Metadata() Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata
}

// BindHost records a host/port selection. The dispatcher never calls
// this over a non-empty existing binding — a bound execution always
// revisits its original host.
func (r *Record) BindHost(host string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata.DockerHost = host
	r.metadata.DockerPort = port
}

// ClearHost deletes the host/port binding, e.g. after a host-unavailable
// failure, so the next attempt re-selects.
func (r *Record) ClearHost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata.DockerHost = ""
	r.metadata.DockerPort = 0
}

// SetContainerID records the container created for this execution.
func (r *Record) SetContainerID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata.ContainerID = id
}

// ContainerName is the bit-exact naming convention for an execution's
// running container.
func (r *Record) ContainerName() string {
	return "fastlane-job-" + r.ExecutionID
}

// DefunctContainerName is the bit-exact naming convention applied by
// mark-as-done.
func (r *Record) DefunctContainerName() string {
	return "defunct-fastlane-job-" + r.ExecutionID
}
