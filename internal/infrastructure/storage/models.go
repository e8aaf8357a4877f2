package storage

import (
	"time"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

// Change kinds
const (
	ChangeKindEdit  = "change"
	ChangeKindReset = "reset"
)

// Distribution is a saved, named bucket set
type Distribution struct {
	ID        string
	Name      string
	Set       distribution.BucketSet
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangeRecord is one entry of a distribution's edit history
type ChangeRecord struct {
	ID             int64
	DistributionID string
	Version        int64 // version produced by this change
	Kind           string
	ChangedKey     string
	RequestedValue float64
	AppliedValue   int
	Before         distribution.BucketSet
	After          distribution.BucketSet
	Renormalized   bool
	CreatedAt      time.Time
}
