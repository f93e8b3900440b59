// Package metrics exposes the counters and gauges a driver may register
// to observe a training run from the outside: steps committed, faults
// raised by kind, chain invalidations, and permutation cycle-walk
// retries. It is grounded on the jhkimqd-chaos-utils dependency on
// github.com/prometheus/client_golang (that repo consumes the sibling
// query-API subpackage; this package uses the exposition subpackage,
// the same module's other half). Nothing in dvm, prng, compensated,
// reduction, permutation, sha256, tensor, or merkle imports this
// package — per spec.md §5/§7 the numerical core never acquires shared
// mutable state beyond the caller's fault record, and a Prometheus
// registry is exactly such shared state. Only cmd/certrain touches it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metric surface a driver updates as it runs. It holds
// its own Registry rather than using prometheus's global default, so
// that multiple TrainXOR runs in the same process (e.g. under test)
// don't collide on metric registration.
type Recorder struct {
	registry *prometheus.Registry

	StepsCommitted     prometheus.Counter
	StepsRejected      prometheus.Counter
	ChainInvalidations prometheus.Counter
	FaultsByKind       *prometheus.CounterVec
	CycleWalkRetries   prometheus.Histogram
	CheckpointsWritten prometheus.Counter
	CurrentEpoch       prometheus.Gauge
}

// New builds a Recorder with all series registered against a private
// registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		StepsCommitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certrain_chain_steps_committed_total",
			Help: "Number of Merkle chain steps successfully committed.",
		}),
		StepsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certrain_chain_steps_rejected_total",
			Help: "Number of Merkle chain steps rejected due to a fault or lifecycle violation.",
		}),
		ChainInvalidations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certrain_chain_invalidations_total",
			Help: "Number of times a chain transitioned into the faulted state.",
		}),
		FaultsByKind: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "certrain_faults_total",
			Help: "Fault-flag record occurrences, by kind.",
		}, []string{"kind"}),
		CycleWalkRetries: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "certrain_permutation_cycle_walk_retries",
			Help:    "Number of cycle-walk re-applications per permutation query.",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		}),
		CheckpointsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certrain_checkpoints_written_total",
			Help: "Number of checkpoints written.",
		}),
		CurrentEpoch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "certrain_current_epoch",
			Help: "The epoch number the most recent training step belongs to.",
		}),
	}

	return r
}

// ObserveFault increments FaultsByKind for every flag set in f. It does
// not itself decide step acceptance — that decision stays inside merkle;
// this is report-only.
func (r *Recorder) ObserveFault(overflow, underflow, divZero, domain, gradFloor bool) {
	if overflow {
		r.FaultsByKind.WithLabelValues("overflow").Inc()
	}
	if underflow {
		r.FaultsByKind.WithLabelValues("underflow").Inc()
	}
	if divZero {
		r.FaultsByKind.WithLabelValues("div_zero").Inc()
	}
	if domain {
		r.FaultsByKind.WithLabelValues("domain").Inc()
	}
	if gradFloor {
		r.FaultsByKind.WithLabelValues("grad_floor").Inc()
	}
}

// Handler returns the HTTP handler that serves this Recorder's registry
// in the Prometheus exposition format, suitable for mounting under
// /metrics in a long-running driver process.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
