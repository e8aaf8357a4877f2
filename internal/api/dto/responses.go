package dto

import (
	"time"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

// Health statuses reported by GET /health.
const (
	HealthStatusOK          = "ok"
	HealthStatusUnavailable = "unavailable"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// NewHealthResponse reports a reachable store at the given schema version.
func NewHealthResponse(schemaVersion int64) HealthResponse {
	return HealthResponse{
		Status:        HealthStatusOK,
		SchemaVersion: schemaVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

// NewUnavailableResponse reports a store that failed its health check.
func NewUnavailableResponse(reason string) HealthResponse {
	return HealthResponse{
		Status:    HealthStatusUnavailable,
		Error:     reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// BucketSummary is one bucket with its display tier.
type BucketSummary struct {
	Key   string            `json:"key"`
	Value int               `json:"value"`
	Tier  distribution.Tier `json:"tier"`
}

// SetState describes a bucket set and whether it is a complete distribution.
type SetState struct {
	Buckets distribution.BucketSet `json:"buckets"`
	Summary []BucketSummary        `json:"summary"`
	Sum     int                    `json:"sum"`
	Status  distribution.Status    `json:"status"`
	Valid   bool                   `json:"valid"`
	Reason  string                 `json:"reason,omitempty"`
}

// DistributionResponse represents a saved distribution in API responses.
type DistributionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	SetState
}

// DistributionListResponse is returned when listing distributions.
type DistributionListResponse struct {
	Distributions []DistributionResponse `json:"distributions"`
	TotalCount    int                    `json:"total_count"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

// ApplyChangeResponse is returned after editing a saved distribution.
type ApplyChangeResponse struct {
	Distribution DistributionResponse  `json:"distribution"`
	Changes      []distribution.Change `json:"changes"`
	NoOp         bool                  `json:"no_op"`
	Seeded       bool                  `json:"seeded"`
	Renormalized bool                  `json:"renormalized"`
}

// AllocateResponse is returned by the stateless allocate endpoint.
type AllocateResponse struct {
	SetState
	Changes      []distribution.Change `json:"changes"`
	NoOp         bool                  `json:"no_op"`
	Seeded       bool                  `json:"seeded"`
	Renormalized bool                  `json:"renormalized"`
}

// ChangeRecordResponse is one history entry.
type ChangeRecordResponse struct {
	ID             int64                  `json:"id"`
	Version        int64                  `json:"version"`
	Kind           string                 `json:"kind"`
	Key            string                 `json:"key,omitempty"`
	RequestedValue float64                `json:"requested_value"`
	AppliedValue   int                    `json:"applied_value"`
	Before         distribution.BucketSet `json:"before"`
	After          distribution.BucketSet `json:"after"`
	Renormalized   bool                   `json:"renormalized"`
	CreatedAt      string                 `json:"created_at"`
}

// ChangeListResponse is returned when listing history.
type ChangeListResponse struct {
	Changes []ChangeRecordResponse `json:"changes"`
	Count   int                    `json:"count"`
}

// PresetResponse describes a built-in bucket layout.
type PresetResponse struct {
	Name     string                 `json:"name"`
	Brackets []distribution.Bracket `json:"brackets"`
	Buckets  distribution.BucketSet `json:"buckets"`
}
