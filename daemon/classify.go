package daemon

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/netresearch/dogu/daemon/domain"
)

// IsConnectionError reports whether err represents a connection-level
// failure talking to the daemon (refused, reset, timed out, DNS
// failure) as opposed to a semantic failure reported by a reachable
// daemon (image not found, name conflict, and so on). The dispatcher
// uses this to decide whether a failure counts against a host's circuit
// breaker. A caller (the fake client, chiefly) can mark an error as
// connection-level unambiguously by wrapping domain.ErrConnectionFailed;
// real transport errors are detected structurally/heuristically below.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrConnectionFailed) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	return containsNetworkIndicator(err.Error())
}

func containsNetworkIndicator(msg string) bool {
	msg = strings.ToLower(msg)
	indicators := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"timeout",
		"eof",
		"broken pipe",
		"network is unreachable",
		"no route to host",
	}
	for _, ind := range indicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
