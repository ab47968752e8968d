// Package domain contains SDK-agnostic domain models for container-daemon
// operations. These types are independent of any specific Docker client
// implementation, so the dispatcher and host pool never import
// fsouza/go-dockerclient directly.
package domain

import "time"

// ContainerState represents the state of a container.
type ContainerState struct {
	Running    bool
	Paused     bool
	Restarting bool
	OOMKilled  bool
	Dead       bool
	Pid        int
	ExitCode   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListOptions represents options for listing containers.
type ListOptions struct {
	All     bool
	Size    bool
	Limit   int
	Filters map[string][]string
}

// RemoveOptions represents options for removing a container.
type RemoveOptions struct {
	RemoveVolumes bool
	Force         bool
}

// LogOptions represents options for retrieving container logs.
type LogOptions struct {
	ShowStdout bool
	ShowStderr bool
	Since      string
	Timestamps bool
	Follow     bool
	Tail       string
}
