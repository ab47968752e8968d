package execution

import (
	"strings"
	"time"
)

// Status is the normalized lifecycle status of a job's container,
// independent of any particular daemon's status vocabulary.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// statusMapping maps a daemon's raw container status string onto the
// enumerated Status domain. The full list of fsouza/go-dockerclient
// (and moby) container states is {created, running, paused, restarting,
// removing, exited, dead}; paused/restarting/removing still represent a
// live container from the job's point of view.
var statusMapping = map[string]Status{
	"created":    StatusCreated,
	"running":    StatusRunning,
	"paused":     StatusRunning,
	"restarting": StatusRunning,
	"removing":   StatusRunning,
	"exited":     StatusDone,
	"dead":       StatusFailed,
}

// NormalizeStatus maps a daemon status string to its Status, defaulting
// to StatusUnknown for anything not in the enumerated domain.
func NormalizeStatus(raw string) Status {
	if s, ok := statusMapping[strings.ToLower(raw)]; ok {
		return s
	}
	return StatusUnknown
}

// JobResult is the structured outcome of get-result.
type JobResult struct {
	Status     Status
	ExitCode   int
	Log        string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ComposeError builds the JobResult.Error field from a custom-error
// annotation and stderr, per the bit-exact composition rule: both
// present joins them with a blank line and an "stderr:" label; only one
// present uses it as-is; neither present yields an empty string.
func ComposeError(customError, stderr string) string {
	switch {
	case customError != "" && stderr != "":
		return customError + "\n\nstderr:\n" + stderr
	case stderr != "":
		return stderr
	default:
		return customError
	}
}
