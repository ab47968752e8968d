package daemon

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netresearch/dogu/daemon/domain"
)

func TestIsConnectionError_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("%w: failed", domain.ErrConnectionFailed)
	assert.True(t, IsConnectionError(err))
}

func TestIsConnectionError_SemanticFailureIsNotConnectionLevel(t *testing.T) {
	err := errors.New("container name already in use")
	assert.False(t, IsConnectionError(err))
}

func TestIsConnectionError_NetworkIndicatorString(t *testing.T) {
	assert.True(t, IsConnectionError(errors.New("dial tcp: connection refused")))
}

func TestIsConnectionError_Nil(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
}
