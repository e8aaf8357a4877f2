// Package metrics records distribution edit activity.
//
// The service depends on the Recorder interface; Prometheus backs it in
// production and Nop is used in tests or when metrics are disabled.
package metrics

// Outcome labels for RecordApply.
const (
	OutcomeApplied  = "applied"
	OutcomeSeeded   = "seeded"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder receives service-level events.
type Recorder interface {
	// RecordApply counts one ApplyChange call and observes its latency.
	RecordApply(outcome string, seconds float64)
	// RecordRenormalization counts partial inputs scaled back to 100.
	RecordRenormalization()
	// RecordBucketsMoved observes how many buckets a single edit touched.
	RecordBucketsMoved(n int)
	// RecordDistributionCreated counts new distributions.
	RecordDistributionCreated()
}

// Nop discards all metrics.
type Nop struct{}

var _ Recorder = Nop{}

// NewNop creates a no-op recorder.
func NewNop() Nop {
	return Nop{}
}

func (Nop) RecordApply(string, float64) {}
func (Nop) RecordRenormalization()      {}
func (Nop) RecordBucketsMoved(int)      {}
func (Nop) RecordDistributionCreated()  {}
