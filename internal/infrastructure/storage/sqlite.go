package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

// Storage provides SQLite database access for distributions and their history.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, nil)
}

// NewStorageWithLogger is NewStorage with a logger for migration output.
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, logger: logger.With("system", "storage")}

	// Run all pending migrations
	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateDistribution inserts a new distribution at version 1
func (s *Storage) CreateDistribution(ctx context.Context, d *Distribution) error {
	bucketsJSON, err := json.Marshal(d.Set)
	if err != nil {
		return fmt.Errorf("failed to encode buckets: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt
	d.Version = 1

	query := `
	INSERT INTO distributions (id, name, buckets_json, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		string(bucketsJSON),
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}

	return nil
}

// GetDistribution retrieves a distribution by ID
func (s *Storage) GetDistribution(ctx context.Context, id string) (*Distribution, error) {
	query := `
	SELECT id, name, buckets_json, version, created_at, updated_at
	FROM distributions WHERE id = ?
	`

	d, err := scanDistribution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return d, nil
}

// ListDistributions returns distributions, most recently updated first
func (s *Storage) ListDistributions(ctx context.Context, filters ListFilters) (*DistributionListResult, error) {
	filters = filters.normalized()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM distributions").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count distributions: %w", err)
	}

	query := `
	SELECT id, name, buckets_json, version, created_at, updated_at
	FROM distributions
	ORDER BY updated_at DESC, id ASC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, filters.Limit, filters.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	result := &DistributionListResult{
		Distributions: []*Distribution{},
		TotalCount:    total,
		Limit:         filters.Limit,
		Offset:        filters.Offset,
	}

	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		result.Distributions = append(result.Distributions, d)
	}

	return result, rows.Err()
}

// DeleteDistribution removes a distribution; its history goes with it via ON DELETE CASCADE
func (s *Storage) DeleteDistribution(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM distributions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete distribution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// RecordChange stores the new bucket values and appends a history entry in one transaction
func (s *Storage) RecordChange(ctx context.Context, d *Distribution, change *ChangeRecord) error {
	bucketsJSON, err := json.Marshal(d.Set)
	if err != nil {
		return fmt.Errorf("failed to encode buckets: %w", err)
	}
	beforeJSON, err := json.Marshal(change.Before)
	if err != nil {
		return fmt.Errorf("failed to encode previous buckets: %w", err)
	}
	afterJSON, err := json.Marshal(change.After)
	if err != nil {
		return fmt.Errorf("failed to encode new buckets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	next := d.Version + 1

	res, err := tx.ExecContext(ctx, `
		UPDATE distributions
		SET buckets_json = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(bucketsJSON), next, now, d.ID, d.Version)
	if err != nil {
		return fmt.Errorf("failed to update distribution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM distributions WHERE id = ?", d.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if change.CreatedAt.IsZero() {
		change.CreatedAt = now
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO distribution_changes
		(distribution_id, version, kind, changed_key, requested_value, applied_value,
		 before_json, after_json, renormalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		next,
		change.Kind,
		change.ChangedKey,
		change.RequestedValue,
		change.AppliedValue,
		string(beforeJSON),
		string(afterJSON),
		change.Renormalized,
		change.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert change: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit change: %w", err)
	}

	change.ID = id
	change.DistributionID = d.ID
	change.Version = next
	d.Version = next
	d.UpdatedAt = now

	return nil
}

// ListChanges returns the newest changes of a distribution first
func (s *Storage) ListChanges(ctx context.Context, distributionID string, limit int) ([]ChangeRecord, error) {
	if limit <= 0 {
		limit = defaultChangesLimit
	}

	query := `
	SELECT id, distribution_id, version, kind, changed_key, requested_value, applied_value,
	       before_json, after_json, renormalized, created_at
	FROM distribution_changes
	WHERE distribution_id = ?
	ORDER BY version DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, distributionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	changes := []ChangeRecord{}
	for rows.Next() {
		var (
			c          ChangeRecord
			beforeJSON string
			afterJSON  string
		)
		err := rows.Scan(
			&c.ID,
			&c.DistributionID,
			&c.Version,
			&c.Kind,
			&c.ChangedKey,
			&c.RequestedValue,
			&c.AppliedValue,
			&beforeJSON,
			&afterJSON,
			&c.Renormalized,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(beforeJSON), &c.Before); err != nil {
			return nil, fmt.Errorf("change %d: corrupt before buckets: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(afterJSON), &c.After); err != nil {
			return nil, fmt.Errorf("change %d: corrupt after buckets: %w", c.ID, err)
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (*Distribution, error) {
	var (
		d           Distribution
		bucketsJSON string
	)

	err := row.Scan(
		&d.ID,
		&d.Name,
		&bucketsJSON,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var set distribution.BucketSet
	if err := json.Unmarshal([]byte(bucketsJSON), &set); err != nil {
		return nil, fmt.Errorf("distribution %s: corrupt buckets: %w", d.ID, err)
	}
	d.Set = set

	return &d, nil
}
