package daemon

import (
	"context"
	"fmt"
	"io"
	"time"

	docker "github.com/fsouza/go-dockerclient"

	"github.com/netresearch/dogu/daemon/domain"
)

// customErrorLabel is the application-written annotation a job records
// on its container to surface a structured error alongside stderr (see
// spec §6.2's "custom-error" attribute).
const customErrorLabel = "dogu.custom-error"

// FsouzaClient adapts github.com/fsouza/go-dockerclient to Client. One
// instance is constructed per host in the pool.
type FsouzaClient struct {
	inner   *docker.Client
	timeout time.Duration
}

// NewFsouzaClient dials endpoint ("host:port") with the given per-call
// timeout.
func NewFsouzaClient(endpoint string, timeout time.Duration) (*FsouzaClient, error) {
	c, err := docker.NewClient("tcp://" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("create docker client for %s: %w", endpoint, err)
	}
	return &FsouzaClient{inner: c, timeout: timeout}, nil
}

func (c *FsouzaClient) PullImage(ctx context.Context, image, tag string) error {
	if tag == "" {
		tag = "latest"
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.inner.PullImage(docker.PullImageOptions{
		Repository: image,
		Tag:        tag,
		Context:    ctx,
	}, docker.AuthConfiguration{})
	if err != nil {
		return c.wrapErr(err)
	}
	return nil
}

func (c *FsouzaClient) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	created, err := c.inner.CreateContainer(docker.CreateContainerOptions{
		Name: opts.Name,
		Config: &docker.Config{
			Image:  opts.Image,
			Cmd:    opts.Command,
			Env:    opts.Environment,
			Labels: opts.Labels,
		},
		Context: ctx,
	})
	if err != nil {
		return "", c.wrapErr(err)
	}

	if err := c.inner.StartContainerWithContext(created.ID, nil, ctx); err != nil {
		return "", c.wrapErr(err)
	}

	return created.ID, nil
}

func (c *FsouzaClient) InspectContainer(ctx context.Context, id string) (Container, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	inspected, err := c.inner.InspectContainerWithOptions(docker.InspectContainerOptions{
		ID:      id,
		Context: ctx,
	})
	if err != nil {
		return Container{}, c.wrapErr(err)
	}
	return fromDockerContainer(inspected), nil
}

func (c *FsouzaClient) ListContainers(ctx context.Context, opts domain.ListOptions) ([]Container, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	listed, err := c.inner.ListContainers(docker.ListContainersOptions{
		All:     opts.All,
		Size:    opts.Size,
		Limit:   opts.Limit,
		Filters: opts.Filters,
		Context: ctx,
	})
	if err != nil {
		return nil, c.wrapErr(err)
	}

	containers := make([]Container, 0, len(listed))
	for _, apiContainer := range listed {
		name := ""
		if len(apiContainer.Names) > 0 {
			name = trimLeadingSlash(apiContainer.Names[0])
		}
		containers = append(containers, Container{
			ID:     apiContainer.ID,
			Name:   name,
			Image:  apiContainer.Image,
			Status: apiContainer.State,
			State: domain.ContainerState{
				Running: apiContainer.State == "running",
			},
		})
	}
	return containers, nil
}

func (c *FsouzaClient) Logs(ctx context.Context, id string, opts domain.LogOptions) (io.ReadCloser, error) {
	r, w := io.Pipe()

	go func() {
		err := c.inner.Logs(docker.LogsOptions{
			Container:    id,
			OutputStream: w,
			ErrorStream:  w,
			Stdout:       opts.ShowStdout,
			Stderr:       opts.ShowStderr,
			Timestamps:   opts.Timestamps,
			Follow:       opts.Follow,
			Tail:         opts.Tail,
			Context:      ctx,
		})
		w.CloseWithError(err)
	}()

	return r, nil
}

func (c *FsouzaClient) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.inner.StopContainerWithContext(id, 10, ctx); err != nil {
		return c.wrapErr(err)
	}
	return nil
}

func (c *FsouzaClient) RenameContainer(ctx context.Context, id, newName string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.inner.RenameContainer(docker.RenameContainerOptions{
		ID:      id,
		Name:    newName,
		Context: ctx,
	}); err != nil {
		return c.wrapErr(err)
	}
	return nil
}

func (c *FsouzaClient) RemoveContainer(ctx context.Context, id string, opts domain.RemoveOptions) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.inner.RemoveContainer(docker.RemoveContainerOptions{
		ID:            id,
		RemoveVolumes: opts.RemoveVolumes,
		Force:         opts.Force,
		Context:       ctx,
	}); err != nil {
		return c.wrapErr(err)
	}
	return nil
}

func (c *FsouzaClient) Close() error {
	return nil
}

func (c *FsouzaClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// wrapErr classifies the fsouza/go-dockerclient error and, for
// connection-level failures, wraps it with domain.ErrConnectionFailed so
// IsConnectionError can recognize it unambiguously.
func (c *FsouzaClient) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*docker.NoSuchContainer); ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, err.Error())
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %s", domain.ErrConnectionFailed, err.Error())
	}
	return err
}

func fromDockerContainer(c *docker.Container) Container {
	customError := ""
	if c.Config != nil && c.Config.Labels != nil {
		customError = c.Config.Labels[customErrorLabel]
	}

	return Container{
		ID:     c.ID,
		Name:   trimLeadingSlash(c.Name),
		Image:  c.Image,
		Status: c.State.Status,
		State: domain.ContainerState{
			Running:    c.State.Running,
			Paused:     c.State.Paused,
			Restarting: c.State.Restarting,
			OOMKilled:  c.State.OOMKilled,
			Dead:       c.State.Dead,
			Pid:        c.State.Pid,
			ExitCode:   c.State.ExitCode,
			Error:      c.State.Error,
			StartedAt:  c.State.StartedAt,
			FinishedAt: c.State.FinishedAt,
		},
		CustomError: customError,
	}
}

func trimLeadingSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

var _ Client = (*FsouzaClient)(nil)
