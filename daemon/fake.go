package daemon

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/netresearch/dogu/daemon/domain"
)

// Fake is an in-memory Client used by tests in place of a real daemon
// connection. Every method can be scripted to fail via the *Err fields;
// a scripted failure wrapped in domain.ErrConnectionFailed is
// recognized by IsConnectionError the same way a real transport error
// would be.
type Fake struct {
	mu sync.Mutex

	// PullErr, if set, is returned by every PullImage call.
	PullErr error
	// RunErr, if set, is returned by every RunContainer call.
	RunErr error
	// InspectErr, if set, is returned by every InspectContainer call.
	InspectErr error
	// ListErr, if set, is returned by every ListContainers call.
	ListErr error
	// StopErr, if set, is returned by every StopContainer call.
	StopErr error
	// RenameErr, if set, is returned by every RenameContainer call.
	RenameErr error
	// RemoveErr, if set, is returned by every RemoveContainer call.
	RemoveErr error
	// LogsErr, if set, is returned by every Logs call.
	LogsErr error

	// Pulls records every (image, tag) pair passed to PullImage.
	Pulls []PulledImage

	containers map[string]Container
	logs       map[string]ContainerLogs
	nextID     int
	closed     bool
}

// PulledImage records one PullImage invocation.
type PulledImage struct {
	Image string
	Tag   string
}

// ContainerLogs is the scriptable stdout/stderr fixture for one
// container, so tests can exercise GetResult's log assembly and
// GetStreamingLogs without a real daemon to stream from.
type ContainerLogs struct {
	Stdout string
	Stderr string
}

// NewFake creates an empty fake daemon.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]Container),
		logs:       make(map[string]ContainerLogs),
	}
}

// SetLogs scripts the stdout/stderr content Logs returns for id,
// independent of however the container was created or seeded.
func (f *Fake) SetLogs(id string, logs ContainerLogs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[id] = logs
}

// Seed inserts a container directly, bypassing RunContainer, so tests can
// set up InspectContainer/ListContainers fixtures.
func (f *Fake) Seed(c Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[c.ID] = c
}

func (f *Fake) PullImage(ctx context.Context, image, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulls = append(f.Pulls, PulledImage{Image: image, Tag: tag})
	return f.PullErr
}

func (f *Fake) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return "", f.RunErr
	}

	for _, c := range f.containers {
		if c.Name == opts.Name {
			return "", fmt.Errorf("container name %q already in use", opts.Name)
		}
	}

	f.nextID++
	id := fmt.Sprintf("fake-container-%d", f.nextID)
	f.containers[id] = Container{
		ID:     id,
		Name:   opts.Name,
		Image:  opts.Image,
		Status: "running",
		State:  domain.ContainerState{Running: true},
	}
	return id, nil
}

func (f *Fake) InspectContainer(ctx context.Context, id string) (Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InspectErr != nil {
		return Container{}, f.InspectErr
	}
	c, ok := f.containers[id]
	if !ok {
		return Container{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return c, nil
}

func (f *Fake) ListContainers(ctx context.Context, opts domain.ListOptions) ([]Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var out []Container
	for _, c := range f.containers {
		if !c.State.Running && !opts.All {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Fake) Logs(ctx context.Context, id string, opts domain.LogOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LogsErr != nil {
		return nil, f.LogsErr
	}

	rec := f.logs[id]
	var out strings.Builder
	if opts.ShowStdout {
		out.WriteString(rec.Stdout)
	}
	if opts.ShowStderr {
		out.WriteString(rec.Stderr)
	}
	return io.NopCloser(strings.NewReader(out.String())), nil
}

func (f *Fake) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopErr != nil {
		return f.StopErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	c.State.Running = false
	c.Status = "exited"
	f.containers[id] = c
	return nil
}

func (f *Fake) RenameContainer(ctx context.Context, id, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RenameErr != nil {
		return f.RenameErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	c.Name = newName
	f.containers[id] = c
	return nil
}

func (f *Fake) RemoveContainer(ctx context.Context, id string, opts domain.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	if _, ok := f.containers[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(f.containers, id)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called, for assertions.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var _ Client = (*Fake)(nil)
