// Package daemon defines the thin capability interface the dispatcher
// uses to talk to a single container daemon, and a concrete adapter over
// github.com/fsouza/go-dockerclient. Every method that performs daemon
// I/O takes a context so the dispatcher's per-call timeout and
// cancellation propagate through to the transport.
package daemon

import (
	"context"
	"io"

	"github.com/netresearch/dogu/daemon/domain"
)

// Client is the capability contract a container daemon must satisfy.
// Production code is backed by Docker's remote API; tests substitute
// Fake, which implements the same interface without any network
// dependency.
type Client interface {
	// PullImage pulls image:tag (tag defaults to "latest" if empty).
	PullImage(ctx context.Context, image, tag string) error

	// RunContainer creates and starts a detached container, returning
	// its assigned ID.
	RunContainer(ctx context.Context, opts RunOptions) (string, error)

	// InspectContainer returns the current state of a container by ID.
	InspectContainer(ctx context.Context, id string) (Container, error)

	// ListContainers lists containers matching opts.
	ListContainers(ctx context.Context, opts domain.ListOptions) ([]Container, error)

	// Logs opens a reader over a container's logs.
	Logs(ctx context.Context, id string, opts domain.LogOptions) (io.ReadCloser, error)

	// StopContainer stops a running container.
	StopContainer(ctx context.Context, id string) error

	// RenameContainer renames a container.
	RenameContainer(ctx context.Context, id, newName string) error

	// RemoveContainer removes a container.
	RemoveContainer(ctx context.Context, id string, opts domain.RemoveOptions) error

	// Close releases any resources (connections, idle transports) held
	// by the client.
	Close() error
}

// RunOptions describes a container to create and start.
type RunOptions struct {
	Image       string
	Name        string
	Command     []string
	Environment []string
	Labels      map[string]string
}

// Container is a read-only view over a container's identity and state,
// as returned by InspectContainer and ListContainers.
type Container struct {
	ID    string
	Name  string
	Image string

	// Status is the daemon's raw status string (e.g. "running",
	// "exited", "dead"); execution.NormalizeStatus maps it onto this
	// module's own status domain.
	Status string
	State  domain.ContainerState

	// CustomError is the content of the application-written error
	// annotation label, if any (see spec §6.2's "custom-error"
	// attribute).
	CustomError string
}
