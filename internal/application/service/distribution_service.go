package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/domain/validator"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/metrics"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/storage"
)

var (
	// ErrNotFound is returned when a distribution ID does not exist.
	ErrNotFound = errors.New("distribution not found")

	// ErrInvalidRequest is returned when caller input cannot form a distribution.
	ErrInvalidRequest = errors.New("invalid request")
)

// CreateRequest holds parameters for creating a distribution.
type CreateRequest struct {
	Name   string
	Keys   []string       // Bucket order; empty means the configured default keys
	Values map[string]int // Missing keys start at 0
}

// ApplyResult is the outcome of an edit or reset.
type ApplyResult struct {
	Distribution *storage.Distribution
	Changes      []distribution.Change
	NoOp         bool
	Seeded       bool
	Renormalized bool
	Validation   *validator.DistributionValidation
}

// Option configures a DistributionService.
type Option func(*DistributionService)

// WithDefaultKeys sets the bucket keys used when CreateRequest.Keys is empty.
func WithDefaultKeys(keys []string) Option {
	return func(s *DistributionService) {
		if len(keys) > 0 {
			s.defaultKeys = append([]string(nil), keys...)
		}
	}
}

// DistributionService manages saved distributions and serializes edits to each one.
type DistributionService struct {
	repo        storage.Repository
	allocator   *distribution.Allocator
	recorder    metrics.Recorder
	logger      *slog.Logger
	defaultKeys []string

	// One mutex per distribution ID; edits to different distributions run in parallel.
	locks *xsync.Map[string, *sync.Mutex]

	newID func() string
	now   func() time.Time
}

// NewDistributionService creates a new distribution service.
func NewDistributionService(
	repo storage.Repository,
	allocator *distribution.Allocator,
	recorder metrics.Recorder,
	logger *slog.Logger,
	opts ...Option,
) *DistributionService {
	if allocator == nil {
		allocator = distribution.NewAllocator(distribution.Config{}, logger)
	}
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &DistributionService{
		repo:        repo,
		allocator:   allocator,
		recorder:    recorder,
		logger:      logger,
		defaultKeys: distribution.AgeBracketKeys(),
		locks:       xsync.NewMap[string, *sync.Mutex](),
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health checks the repository and returns its schema version.
func (s *DistributionService) Health(ctx context.Context) (int64, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return 0, fmt.Errorf("storage unreachable: %w", err)
	}
	version, err := s.repo.SchemaVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// DefaultKeys returns the keys new distributions get when none are given.
func (s *DistributionService) DefaultKeys() []string {
	return append([]string(nil), s.defaultKeys...)
}

// Create validates and stores a new distribution. Values must be all zero or sum to 100.
func (s *DistributionService) Create(ctx context.Context, req CreateRequest) (*storage.Distribution, error) {
	keys := req.Keys
	if len(keys) == 0 {
		keys = s.defaultKeys
	}

	set, err := distribution.NewBucketSet(keys, req.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if v := validator.ValidateEditable(set); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, v.Reason)
	}

	d := &storage.Distribution{
		ID:        s.newID(),
		Name:      strings.TrimSpace(req.Name),
		Set:       set,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateDistribution(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save distribution: %w", err)
	}

	s.recorder.RecordDistributionCreated()
	s.logger.Info("distribution created",
		"distribution_id", d.ID,
		"name", d.Name,
		"buckets", set.Len(),
		"status", set.Status(),
	)

	return d, nil
}

// Get returns a distribution or ErrNotFound.
func (s *DistributionService) Get(ctx context.Context, id string) (*storage.Distribution, error) {
	d, err := s.repo.GetDistribution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load distribution: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// List returns a page of distributions.
func (s *DistributionService) List(ctx context.Context, limit, offset int) (*storage.DistributionListResult, error) {
	result, err := s.repo.ListDistributions(ctx, storage.ListFilters{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	return result, nil
}

// Delete removes a distribution and its history. The lock entry for id is
// kept: a caller already waiting on it must share a mutex with later callers.
func (s *DistributionService) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	deleted, err := s.repo.DeleteDistribution(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete distribution: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Info("distribution deleted", "distribution_id", id)
	return nil
}

// History returns the newest changes of a distribution first.
func (s *DistributionService) History(ctx context.Context, id string, limit int) ([]storage.ChangeRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	changes, err := s.repo.ListChanges(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return changes, nil
}

// ApplyChange sets key to requested on a saved distribution and persists the
// rebalanced buckets. Concurrent calls for the same ID are applied one at a time.
func (s *DistributionService) ApplyChange(ctx context.Context, id, key string, requested float64) (*ApplyResult, error) {
	start := time.Now()

	unlock := s.lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.allocate(d.Set, key, requested, start)
	if err != nil {
		s.logger.Warn("change rejected",
			"distribution_id", id,
			"key", key,
			"requested", requested,
			"error", err,
		)
		return nil, err
	}

	result := &ApplyResult{
		Distribution: d,
		Changes:      res.Changes,
		NoOp:         res.NoOp,
		Seeded:       res.Seeded,
		Renormalized: res.Renormalized,
	}

	if len(res.Changes) > 0 {
		applied, _ := res.Set.Value(key)
		change := &storage.ChangeRecord{
			Kind:           storage.ChangeKindEdit,
			ChangedKey:     key,
			RequestedValue: max(0, min(requested, distribution.Total)),
			AppliedValue:   applied,
			Before:         d.Set,
			After:          res.Set,
			Renormalized:   res.Renormalized,
			CreatedAt:      s.now(),
		}

		next := *d
		next.Set = res.Set
		if err := s.repo.RecordChange(ctx, &next, change); err != nil {
			s.recorder.RecordApply(metrics.OutcomeFailed, time.Since(start).Seconds())
			return nil, fmt.Errorf("failed to save change: %w", err)
		}
		result.Distribution = &next
		s.observe(res, start)

		s.logger.Info("distribution updated",
			"distribution_id", id,
			"key", key,
			"requested", requested,
			"applied", applied,
			"buckets_moved", len(res.Changes),
			"version", next.Version,
		)
	} else {
		s.observe(res, start)
	}

	result.Validation = validator.ValidateDistribution(result.Distribution.Set)
	return result, nil
}

// Reset returns a distribution to all zeros. Resetting a pristine distribution
// is a no-op and is not recorded.
func (s *DistributionService) Reset(ctx context.Context, id string) (*ApplyResult, error) {
	unlock := s.lock(id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	zero := distribution.ZeroSet(d.Set.Keys()...)
	result := &ApplyResult{Distribution: d, NoOp: d.Set.Equal(zero)}

	if !result.NoOp {
		for _, b := range d.Set.Buckets {
			if b.Value != 0 {
				result.Changes = append(result.Changes, distribution.Change{Key: b.Key, From: b.Value, To: 0})
			}
		}

		next := *d
		next.Set = zero
		change := &storage.ChangeRecord{
			Kind:      storage.ChangeKindReset,
			Before:    d.Set,
			After:     zero,
			CreatedAt: s.now(),
		}
		if err := s.repo.RecordChange(ctx, &next, change); err != nil {
			return nil, fmt.Errorf("failed to save reset: %w", err)
		}
		result.Distribution = &next

		s.logger.Info("distribution reset", "distribution_id", id, "version", next.Version)
	}

	result.Validation = validator.ValidateDistribution(result.Distribution.Set)
	return result, nil
}

// Allocate runs the allocator on an unsaved set.
func (s *DistributionService) Allocate(set distribution.BucketSet, key string, requested float64) (*distribution.Result, error) {
	start := time.Now()
	res, err := s.allocate(set, key, requested, start)
	if err != nil {
		return nil, err
	}
	s.observe(res, start)
	return res, nil
}

// allocate runs the allocator and records failures; successes are recorded
// by the caller once the outcome is final.
func (s *DistributionService) allocate(set distribution.BucketSet, key string, requested float64, start time.Time) (*distribution.Result, error) {
	res, err := s.allocator.ApplyChange(set, key, requested)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if errors.Is(err, distribution.ErrInvariantViolated) {
			outcome = metrics.OutcomeFailed
		}
		s.recorder.RecordApply(outcome, time.Since(start).Seconds())
		return nil, err
	}
	return res, nil
}

func (s *DistributionService) observe(res *distribution.Result, start time.Time) {
	elapsed := time.Since(start).Seconds()
	switch {
	case res.NoOp:
		s.recorder.RecordApply(metrics.OutcomeNoop, elapsed)
	case res.Seeded:
		s.recorder.RecordApply(metrics.OutcomeSeeded, elapsed)
	default:
		s.recorder.RecordApply(metrics.OutcomeApplied, elapsed)
	}
	if res.Renormalized {
		s.recorder.RecordRenormalization()
	}
	if !res.NoOp {
		s.recorder.RecordBucketsMoved(len(res.Changes))
	}
}

func (s *DistributionService) lock(id string) func() {
	mu, _ := s.locks.LoadOrCompute(id, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	mu.Lock()
	return mu.Unlock
}
