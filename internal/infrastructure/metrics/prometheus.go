package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder backed by Prometheus collectors.
// Collectors are registered on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	applyTotal    *prometheus.CounterVec
	applyDuration prometheus.Histogram
	renormalized  prometheus.Counter
	bucketsMoved  prometheus.Histogram
	createdTotal  prometheus.Counter
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus-backed recorder.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "audiencemix" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "audiencemix"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.applyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "changes_total",
			Help:      "Total distribution edits by outcome (applied, seeded, noop, rejected, failed).",
		}, []string{"outcome"})

		p.applyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "apply_duration_seconds",
			Help:      "Latency of a full edit including persistence, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2.5, 10), // 100us .. ~1.5s
		})

		p.renormalized = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "renormalizations_total",
			Help:      "Partial distributions scaled back to 100 before an edit.",
		})

		p.bucketsMoved = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "buckets_moved",
			Help:      "Number of buckets whose value changed in a single edit.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		})

		p.createdTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "distributions_created_total",
			Help:      "Total distributions created.",
		})

		p.reg.MustRegister(p.applyTotal)
		p.reg.MustRegister(p.applyDuration)
		p.reg.MustRegister(p.renormalized)
		p.reg.MustRegister(p.bucketsMoved)
		p.reg.MustRegister(p.createdTotal)
	})
}

// RecordApply counts an edit by outcome and observes its latency.
func (p *Prometheus) RecordApply(outcome string, seconds float64) {
	p.ensureRegistered()
	p.applyTotal.WithLabelValues(outcome).Inc()
	p.applyDuration.Observe(seconds)
}

// RecordRenormalization counts a renormalized input.
func (p *Prometheus) RecordRenormalization() {
	p.ensureRegistered()
	p.renormalized.Inc()
}

// RecordBucketsMoved observes the number of buckets touched by one edit.
func (p *Prometheus) RecordBucketsMoved(n int) {
	p.ensureRegistered()
	p.bucketsMoved.Observe(float64(n))
}

// RecordDistributionCreated counts a new distribution.
func (p *Prometheus) RecordDistributionCreated() {
	p.ensureRegistered()
	p.createdTotal.Inc()
}
