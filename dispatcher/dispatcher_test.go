package dispatcher

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/netresearch/dogu/blacklist"
	"github.com/netresearch/dogu/circuit"
	"github.com/netresearch/dogu/daemon"
	"github.com/netresearch/dogu/daemon/domain"
	"github.com/netresearch/dogu/execution"
	"github.com/netresearch/dogu/hostpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, specs []hostpool.PartitionSpec) (*Dispatcher, map[string]*daemon.Fake) {
	t.Helper()
	fakes := make(map[string]*daemon.Fake)
	factory := func(host string, port int) (daemon.Client, error) {
		id := hostpool.JoinHostID(host, port)
		f := daemon.NewFake()
		fakes[id] = f
		return f, nil
	}

	circuits := circuit.NewRegistry(circuit.Config{MaxFailures: 2, ResetTimeout: time.Hour})
	pool, err := hostpool.New(specs, factory, circuits, nil)
	require.NoError(t, err)

	d := New(pool, circuits, blacklist.NewMemStore(), nil, nil)
	return d, fakes
}

func singlePartition(hosts ...string) []hostpool.PartitionSpec {
	return []hostpool.PartitionSpec{{Regex: nil, Hosts: hosts, MaxRunning: hostpool.Unbounded}}
}

func TestDispatcher_UpdateImageBindsHostOnFirstCall(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job-1", "exec-1")

	err := d.UpdateImage(context.Background(), rec, "alpine", "latest")
	require.NoError(t, err)

	md := rec.Metadata()
	assert.Equal(t, "a", md.DockerHost)
	assert.Equal(t, 1001, md.DockerPort)
	assert.Len(t, fakes["a:1001"].Pulls, 1)
}

func TestDispatcher_ConnectionFailureClearsBindingAndCountsTowardCircuit(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job-1", "exec-1")
	fakes["a:1001"].PullErr = &connErr{}

	err := d.UpdateImage(context.Background(), rec, "alpine", "latest")
	require.Error(t, err)
	var hostErr *HostUnavailableError
	require.ErrorAs(t, err, &hostErr)

	md := rec.Metadata()
	assert.False(t, md.HasHost())

	// Registry was constructed with MaxFailures: 2; one failure must not
	// yet trip the breaker open.
	assert.Equal(t, circuit.Closed, d.Circuits.State("a:1001"))
}

func TestDispatcher_SemanticFailurePropagatesWithoutTrippingCircuit(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job-1", "exec-1")
	fakes["a:1001"].PullErr = errors.New("no such image")

	err := d.UpdateImage(context.Background(), rec, "alpine", "latest")
	require.Error(t, err)
	var hostErr *HostUnavailableError
	assert.False(t, errors.As(err, &hostErr))

	md := rec.Metadata()
	assert.True(t, md.HasHost(), "semantic failures must not clear the host binding")
	assert.Equal(t, circuit.Closed, d.Circuits.State("a:1001"))
}

func TestDispatcher_OpenCircuitIsNeverSelected(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001", "b:1002"))
	d.Circuits.RecordFailure("a:1001")
	d.Circuits.RecordFailure("a:1001")
	require.Equal(t, circuit.Open, d.Circuits.State("a:1001"))

	for i := 0; i < 10; i++ {
		rec := execution.New("build", "job", "exec")
		require.NoError(t, d.UpdateImage(context.Background(), rec, "alpine", "latest"))
		assert.Equal(t, "b", rec.Metadata().DockerHost)
	}
	assert.Empty(t, fakes["a:1001"].Pulls)
}

func TestDispatcher_BlacklistedHostIsNeverSelected(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001", "b:1002"))
	require.NoError(t, d.Blacklist.Add("a:1001"))

	rec := execution.New("build", "job", "exec")
	require.NoError(t, d.UpdateImage(context.Background(), rec, "alpine", "latest"))
	assert.Equal(t, "b", rec.Metadata().DockerHost)
	assert.Empty(t, fakes["a:1001"].Pulls)
}

func TestDispatcher_RunRequiresExistingHostBinding(t *testing.T) {
	d, _ := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec")

	err := d.Run(context.Background(), rec, "alpine", "latest", nil, nil)
	require.Error(t, err)
	var invalidErr *InvalidStateError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDispatcher_RunUsesBoundHostAndSetsContainerID(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-42")
	rec.BindHost("a", 1001)

	err := d.Run(context.Background(), rec, "alpine", "latest", []string{"echo", "hi"}, nil)
	require.NoError(t, err)

	md := rec.Metadata()
	assert.True(t, md.HasContainer())
	c, err := fakes["a:1001"].InspectContainer(context.Background(), md.ContainerID)
	require.NoError(t, err)
	assert.Equal(t, "fastlane-job-exec-42", c.Name)
}

func TestDispatcher_StopJobWithoutContainerIsNoop(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec")

	stopped, err := d.StopJob(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Nil(t, fakes["a:1001"].StopErr)
}

func TestDispatcher_StopJobStopsBoundContainer(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-1")
	rec.BindHost("a", 1001)
	require.NoError(t, d.Run(context.Background(), rec, "alpine", "latest", nil, nil))

	stopped, err := d.StopJob(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, stopped)

	c, err := fakes["a:1001"].InspectContainer(context.Background(), rec.Metadata().ContainerID)
	require.NoError(t, err)
	assert.False(t, c.State.Running)
}

func TestDispatcher_MarkAsDoneRenamesToDefunctPrefix(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-7")
	rec.BindHost("a", 1001)
	require.NoError(t, d.Run(context.Background(), rec, "alpine", "latest", nil, nil))

	require.NoError(t, d.MarkAsDone(context.Background(), rec))

	c, err := fakes["a:1001"].InspectContainer(context.Background(), rec.Metadata().ContainerID)
	require.NoError(t, err)
	assert.Equal(t, "defunct-fastlane-job-exec-7", c.Name)
}

func TestDispatcher_RemoveDoneRemovesOnlyDefunctPrefixed(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	fakes["a:1001"].Seed(daemon.Container{ID: "c1", Name: "defunct-fastlane-job-exec-1"})
	fakes["a:1001"].Seed(daemon.Container{ID: "c2", Name: "fastlane-job-exec-2"})

	removed := d.RemoveDone(context.Background())
	require.Len(t, removed, 1)
	assert.Equal(t, "c1", removed[0].ID)

	_, err := fakes["a:1001"].InspectContainer(context.Background(), "c2")
	assert.NoError(t, err)
}

func TestDispatcher_RemoveDoneSkipsFailingHostAndContinues(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001", "b:1002"))
	fakes["a:1001"].ListErr = errors.New("host down")
	fakes["b:1002"].Seed(daemon.Container{ID: "c1", Name: "defunct-fastlane-job-exec-1"})

	removed := d.RemoveDone(context.Background())
	require.Len(t, removed, 1)
	assert.Equal(t, "b", removed[0].Host)
}

func TestDispatcher_ValidateMaxRunningExecutions(t *testing.T) {
	specs := []hostpool.PartitionSpec{{Regex: nil, Hosts: []string{"a:1001"}, MaxRunning: 1}}
	d, fakes := newTestDispatcher(t, specs)
	fakes["a:1001"].Seed(daemon.Container{ID: "c1", Name: "fastlane-job-exec-1", State: domain.ContainerState{Running: true}})

	ok, err := d.ValidateMaxRunningExecutions(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcher_ValidateMaxRunningExecutionsUnboundedWhenNoPartitionMatches(t *testing.T) {
	specs := []hostpool.PartitionSpec{}
	d, _ := newTestDispatcher(t, specs)

	ok, err := d.ValidateMaxRunningExecutions(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDispatcher_GetResultMapsStatusAndComposesError(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-5")
	rec.BindHost("a", 1001)
	rec.SetContainerID("c1")

	started, err := time.Parse(time.RFC3339Nano, "2018-08-27T17:14:14.1951232Z")
	require.NoError(t, err)
	finished, err := time.Parse(time.RFC3339Nano, "2018-08-27T17:14:17.1951232Z")
	require.NoError(t, err)

	fakes["a:1001"].Seed(daemon.Container{
		ID:     "c1",
		Name:   "fastlane-job-exec-5",
		Status: "exited",
		State: domain.ContainerState{
			ExitCode:   0,
			StartedAt:  started,
			FinishedAt: finished,
		},
	})
	fakes["a:1001"].SetLogs("c1", daemon.ContainerLogs{Stdout: "some log", Stderr: "some error"})

	result, err := d.GetResult(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, execution.StatusDone, result.Status)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "some log", result.Log)
	assert.Equal(t, "some error", result.Error)
	assert.True(t, result.StartedAt.Equal(started))
	require.NotNil(t, result.FinishedAt)
	assert.True(t, result.FinishedAt.Equal(finished))
}

func TestDispatcher_GetResultRequiresContainerID(t *testing.T) {
	d, _ := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-1")
	rec.BindHost("a", 1001)

	_, err := d.GetResult(context.Background(), rec)
	require.Error(t, err)
	var invalidErr *InvalidStateError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDispatcher_GetResultConnectionFailureClearsBindingAndCountsTowardCircuit(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-1")
	rec.BindHost("a", 1001)
	rec.SetContainerID("c1")
	fakes["a:1001"].InspectErr = &connErr{}

	_, err := d.GetResult(context.Background(), rec)
	require.Error(t, err)
	var hostErr *HostUnavailableError
	require.ErrorAs(t, err, &hostErr)

	assert.False(t, rec.Metadata().HasHost())
	assert.Equal(t, circuit.Closed, d.Circuits.State("a:1001"))
}

func TestDispatcher_GetStreamingLogsFollowsCombinedOutput(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-9")
	rec.BindHost("a", 1001)
	rec.SetContainerID("c1")
	fakes["a:1001"].Seed(daemon.Container{ID: "c1", Name: "fastlane-job-exec-9"})
	fakes["a:1001"].SetLogs("c1", daemon.ContainerLogs{Stdout: "out", Stderr: "err"})

	reader, err := d.GetStreamingLogs(context.Background(), rec)
	require.NoError(t, err)

	chunk, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "outerr", string(chunk))
}

func TestDispatcher_GetStreamingLogsRequiresContainerID(t *testing.T) {
	d, _ := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-1")
	rec.BindHost("a", 1001)

	_, err := d.GetStreamingLogs(context.Background(), rec)
	require.Error(t, err)
	var invalidErr *InvalidStateError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDispatcher_GetStreamingLogsConnectionFailureClearsBindingAndCountsTowardCircuit(t *testing.T) {
	d, fakes := newTestDispatcher(t, singlePartition("a:1001"))
	rec := execution.New("build", "job", "exec-1")
	rec.BindHost("a", 1001)
	rec.SetContainerID("c1")
	fakes["a:1001"].LogsErr = &connErr{}

	_, err := d.GetStreamingLogs(context.Background(), rec)
	require.Error(t, err)
	var hostErr *HostUnavailableError
	require.ErrorAs(t, err, &hostErr)

	assert.False(t, rec.Metadata().HasHost())
	assert.Equal(t, circuit.Closed, d.Circuits.State("a:1001"))
}

func TestDispatcher_GetBlacklistedHosts(t *testing.T) {
	d, _ := newTestDispatcher(t, singlePartition("a:1001"))
	require.NoError(t, d.Blacklist.Add("a:1001"))

	hosts, err := d.GetBlacklistedHosts()
	require.NoError(t, err)
	assert.True(t, hosts["a:1001"])
}

// connErr is a sentinel error classified as connection-level by
// daemon.IsConnectionError, without depending on any real transport.
type connErr struct{}

func (e *connErr) Error() string { return "connection refused" }
func (e *connErr) Unwrap() error { return domain.ErrConnectionFailed }
