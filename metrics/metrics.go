// Package metrics exposes Prometheus instrumentation for the
// dispatcher: per-host circuit state, host-unavailable counts, host
// selection latency and blacklist size.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the narrow metrics surface the dispatcher depends on, so
// that it does not need Prometheus directly wired in to function (a
// Noop implementation covers that case).
type Recorder interface {
	// CircuitState records a host's circuit state as a numeric gauge
	// (0=closed, 1=half-open, 2=open).
	CircuitState(host string, state float64)
	// HostUnavailable increments the host-unavailable counter for host.
	HostUnavailable(host string)
	// ObserveSelection records how long a host-pool selection took.
	ObserveSelection(d time.Duration)
	// BlacklistedHosts sets the current blacklist size gauge.
	BlacklistedHosts(n int)
}

// Prometheus is the real Recorder, backed by
// github.com/prometheus/client_golang.
type Prometheus struct {
	circuitState      *prometheus.GaugeVec
	hostUnavailable   *prometheus.CounterVec
	selectionDuration prometheus.Histogram
	blacklistedHosts  prometheus.Gauge
}

// NewPrometheus creates and registers the recorder's metrics against
// reg. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dogu_circuit_state",
			Help: "Circuit breaker state per host (0=closed, 1=half-open, 2=open).",
		}, []string{"host"}),
		hostUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogu_host_unavailable_total",
			Help: "Total connection-level failures observed per host.",
		}, []string{"host"}),
		selectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dogu_selection_duration_seconds",
			Help:    "Time spent selecting an eligible host from the pool.",
			Buckets: prometheus.DefBuckets,
		}),
		blacklistedHosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogu_blacklisted_hosts",
			Help: "Number of hosts currently in the blacklist.",
		}),
	}

	reg.MustRegister(p.circuitState, p.hostUnavailable, p.selectionDuration, p.blacklistedHosts)
	return p
}

func (p *Prometheus) CircuitState(host string, state float64) {
	p.circuitState.WithLabelValues(host).Set(state)
}

func (p *Prometheus) HostUnavailable(host string) {
	p.hostUnavailable.WithLabelValues(host).Inc()
}

func (p *Prometheus) ObserveSelection(d time.Duration) {
	p.selectionDuration.Observe(d.Seconds())
}

func (p *Prometheus) BlacklistedHosts(n int) {
	p.blacklistedHosts.Set(float64(n))
}

var _ Recorder = (*Prometheus)(nil)

// Noop is a Recorder that discards everything, used when metrics are
// not configured.
type Noop struct{}

func (Noop) CircuitState(string, float64)    {}
func (Noop) HostUnavailable(string)          {}
func (Noop) ObserveSelection(time.Duration)  {}
func (Noop) BlacklistedHosts(int)            {}

var _ Recorder = Noop{}
