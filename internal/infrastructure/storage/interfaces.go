package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by writes that target a missing distribution.
	ErrNotFound = errors.New("distribution not found")

	// ErrVersionConflict is returned when a distribution changed since it was read.
	ErrVersionConflict = errors.New("distribution version conflict")
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	DistributionRepository
	ChangeRepository

	// Ping verifies the database is reachable
	Ping(ctx context.Context) error

	// SchemaVersion returns the highest applied migration version
	SchemaVersion(ctx context.Context) (int64, error)

	Close() error
}

// DistributionRepository handles saved distributions
type DistributionRepository interface {
	// CreateDistribution inserts a new distribution at version 1
	CreateDistribution(ctx context.Context, d *Distribution) error

	// GetDistribution retrieves a distribution by ID, (nil, nil) when absent
	GetDistribution(ctx context.Context, id string) (*Distribution, error)

	// ListDistributions returns distributions, most recently updated first
	ListDistributions(ctx context.Context, filters ListFilters) (*DistributionListResult, error)

	// DeleteDistribution removes a distribution and its history, reporting whether it existed
	DeleteDistribution(ctx context.Context, id string) (bool, error)
}

// ChangeRepository handles the edit history of distributions
type ChangeRepository interface {
	// RecordChange atomically stores d's new buckets and appends change.
	// d.Version must be the version the change was computed from; on success
	// both d.Version and change.Version hold the new version.
	RecordChange(ctx context.Context, d *Distribution, change *ChangeRecord) error

	// ListChanges returns the newest changes of a distribution first
	ListChanges(ctx context.Context, distributionID string, limit int) ([]ChangeRecord, error)
}

// ListFilters defines pagination for listing distributions
type ListFilters struct {
	Limit  int // Max results (0 = default 50)
	Offset int // Pagination offset
}

// DistributionListResult contains paginated distributions
type DistributionListResult struct {
	Distributions []*Distribution
	TotalCount    int
	Limit         int
	Offset        int
}

const (
	defaultListLimit    = 50
	defaultChangesLimit = 100
)

func (f ListFilters) normalized() ListFilters {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
