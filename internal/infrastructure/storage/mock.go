package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It is safe for concurrent use so services can be exercised from many goroutines.
type MockRepository struct {
	mu            sync.Mutex
	distributions map[string]*Distribution
	changes       map[string][]ChangeRecord // Keyed by distribution_id
	nextChangeID  int64

	// Hooks for test assertions
	CreateCalls       int
	RecordChangeCalls int
	LastChange        *ChangeRecord

	// Error injection for testing error paths
	CreateErr       error
	GetErr          error
	ListErr         error
	DeleteErr       error
	RecordChangeErr error
	ListChangesErr  error
	PingErr         error

	// SchemaVersionValue is what SchemaVersion reports
	SchemaVersionValue int64
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		distributions: make(map[string]*Distribution),
		changes:       make(map[string][]ChangeRecord),
		nextChangeID:  1,

		SchemaVersionValue: 2,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// Ping returns PingErr
func (m *MockRepository) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

// SchemaVersion returns SchemaVersionValue, or PingErr when set
func (m *MockRepository) SchemaVersion(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PingErr != nil {
		return 0, m.PingErr
	}
	return m.SchemaVersionValue, nil
}

// CreateDistribution stores a copy of d at version 1
func (m *MockRepository) CreateDistribution(_ context.Context, d *Distribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	d.Version = 1

	m.distributions[d.ID] = copyDistribution(d)
	return nil
}

// GetDistribution returns a copy of the stored distribution, or nil
func (m *MockRepository) GetDistribution(_ context.Context, id string) (*Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	d, ok := m.distributions[id]
	if !ok {
		return nil, nil
	}
	return copyDistribution(d), nil
}

// ListDistributions pages through distributions, most recently updated first
func (m *MockRepository) ListDistributions(_ context.Context, filters ListFilters) (*DistributionListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	filters = filters.normalized()

	all := make([]*Distribution, 0, len(m.distributions))
	for _, d := range m.distributions {
		all = append(all, copyDistribution(d))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	result := &DistributionListResult{
		Distributions: []*Distribution{},
		TotalCount:    len(all),
		Limit:         filters.Limit,
		Offset:        filters.Offset,
	}
	if filters.Offset < len(all) {
		end := min(filters.Offset+filters.Limit, len(all))
		result.Distributions = all[filters.Offset:end]
	}
	return result, nil
}

// DeleteDistribution removes a distribution and its history
func (m *MockRepository) DeleteDistribution(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	if _, ok := m.distributions[id]; !ok {
		return false, nil
	}
	delete(m.distributions, id)
	delete(m.changes, id)
	return true, nil
}

// RecordChange applies the same optimistic version check as the SQLite store
func (m *MockRepository) RecordChange(_ context.Context, d *Distribution, change *ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordChangeCalls++
	if m.RecordChangeErr != nil {
		return m.RecordChangeErr
	}

	stored, ok := m.distributions[d.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != d.Version {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	next := d.Version + 1

	if change.CreatedAt.IsZero() {
		change.CreatedAt = now
	}
	change.ID = m.nextChangeID
	m.nextChangeID++
	change.DistributionID = d.ID
	change.Version = next

	d.Version = next
	d.UpdatedAt = now
	m.distributions[d.ID] = copyDistribution(d)

	recorded := *change
	recorded.Before = change.Before.Clone()
	recorded.After = change.After.Clone()
	m.changes[d.ID] = append(m.changes[d.ID], recorded)
	m.LastChange = &recorded
	return nil
}

// ListChanges returns the newest changes first
func (m *MockRepository) ListChanges(_ context.Context, distributionID string, limit int) ([]ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListChangesErr != nil {
		return nil, m.ListChangesErr
	}
	if limit <= 0 {
		limit = defaultChangesLimit
	}

	history := m.changes[distributionID]
	out := make([]ChangeRecord, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// AddDistribution seeds the mock directly, keeping the given version
func (m *MockRepository) AddDistribution(d *Distribution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distributions[d.ID] = copyDistribution(d)
}

// Reset clears all data and hooks
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.distributions = make(map[string]*Distribution)
	m.changes = make(map[string][]ChangeRecord)
	m.nextChangeID = 1
	m.CreateCalls = 0
	m.RecordChangeCalls = 0
	m.LastChange = nil
}

func copyDistribution(d *Distribution) *Distribution {
	copied := *d
	copied.Set = d.Set.Clone()
	return &copied
}
