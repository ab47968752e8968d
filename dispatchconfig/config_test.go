package dispatchconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Len(t, cfg.Partitions, 1)
	assert.Nil(t, cfg.Partitions[0].Regex)
	assert.Equal(t, []string{"localhost:2375"}, cfg.Partitions[0].Hosts)
	assert.Equal(t, 2, cfg.Partitions[0].MaxRunning)
	assert.Equal(t, 5, cfg.CircuitMaxFails)
	assert.Equal(t, 60*time.Second, cfg.CircuitResetTimeout)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesDockerSection(t *testing.T) {
	path := writeTempINI(t, `
[docker]
partition = test-.+|host1:1234,host2:1234|3
partition = |host3:1234|2
circuit_breaker_max_fails = 7
circuit_breaker_reset_timeout = 30s
timeout = 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Partitions, 2)

	assert.NotNil(t, cfg.Partitions[0].Regex)
	assert.True(t, cfg.Partitions[0].Regex.MatchString("test-123"))
	assert.Equal(t, []string{"host1:1234", "host2:1234"}, cfg.Partitions[0].Hosts)
	assert.Equal(t, 3, cfg.Partitions[0].MaxRunning)

	assert.Nil(t, cfg.Partitions[1].Regex)
	assert.Equal(t, []string{"host3:1234"}, cfg.Partitions[1].Hosts)

	assert.Equal(t, 7, cfg.CircuitMaxFails)
	assert.Equal(t, 30*time.Second, cfg.CircuitResetTimeout)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestLoad_EnvOverridesTakePrecedence(t *testing.T) {
	path := writeTempINI(t, `
[docker]
circuit_breaker_max_fails = 7
`)

	t.Setenv(envMaxFails, "3")
	t.Setenv(envTimeout, "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CircuitMaxFails)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoad_RejectsMalformedPartition(t *testing.T) {
	path := writeTempINI(t, `
[docker]
partition = not-enough-fields
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func writeTempINI(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "dogu-*.ini")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return f.Name()
}
