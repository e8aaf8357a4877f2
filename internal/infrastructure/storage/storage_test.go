package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	tmpDB := createTempDB(t)
	t.Cleanup(func() { os.Remove(tmpDB) })

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustSet(t *testing.T, values map[string]int) distribution.BucketSet {
	t.Helper()
	set, err := distribution.NewBucketSet([]string{"A", "B", "C"}, values)
	require.NoError(t, err)
	return set
}

func TestStorage_CreateAndGetDistribution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := &Distribution{
		ID:   "dist-1",
		Name: "Spring campaign",
		Set:  mustSet(t, map[string]int{"A": 50, "B": 30, "C": 20}),
	}
	require.NoError(t, store.CreateDistribution(ctx, d))
	assert.Equal(t, int64(1), d.Version)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := store.GetDistribution(ctx, "dist-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Spring campaign", got.Name)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, []string{"A", "B", "C"}, got.Set.Keys())
	assert.True(t, d.Set.Equal(got.Set))
	assert.WithinDuration(t, d.CreatedAt, got.CreatedAt, time.Second)
}

func TestStorage_PingAndSchemaVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(expectedMigrationCount), version)

	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(ctx))
}

func TestStorage_GetDistribution_NotFound(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetDistribution(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_CreateDistribution_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDistribution(ctx, &Distribution{ID: "dup", Set: mustSet(t, nil)}))
	assert.Error(t, store.CreateDistribution(ctx, &Distribution{ID: "dup", Set: mustSet(t, nil)}))
}

func TestStorage_ListDistributions_Pagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, store.CreateDistribution(ctx, &Distribution{
			ID:        id,
			Set:       mustSet(t, nil),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := store.ListDistributions(ctx, ListFilters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Distributions, 2)
	assert.Equal(t, "d3", page.Distributions[0].ID)
	assert.Equal(t, "d2", page.Distributions[1].ID)

	page, err = store.ListDistributions(ctx, ListFilters{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Distributions, 1)
	assert.Equal(t, "d1", page.Distributions[0].ID)

	page, err = store.ListDistributions(ctx, ListFilters{})
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, page.Limit)
	assert.Len(t, page.Distributions, 3)
}

func TestStorage_RecordChange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	before := mustSet(t, map[string]int{"A": 50, "B": 30, "C": 20})
	d := &Distribution{ID: "dist-1", Set: before}
	require.NoError(t, store.CreateDistribution(ctx, d))

	after := mustSet(t, map[string]int{"A": 75, "B": 15, "C": 10})
	d.Set = after
	change := &ChangeRecord{
		Kind:           ChangeKindEdit,
		ChangedKey:     "A",
		RequestedValue: 75,
		AppliedValue:   75,
		Before:         before,
		After:          after,
	}
	require.NoError(t, store.RecordChange(ctx, d, change))

	assert.Equal(t, int64(2), d.Version)
	assert.Equal(t, int64(2), change.Version)
	assert.NotZero(t, change.ID)

	got, err := store.GetDistribution(ctx, "dist-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, after.Equal(got.Set))

	history, err := store.ListChanges(ctx, "dist-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "A", history[0].ChangedKey)
	assert.Equal(t, 75, history[0].AppliedValue)
	assert.True(t, before.Equal(history[0].Before))
	assert.True(t, after.Equal(history[0].After))
}

func TestStorage_RecordChange_VersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := &Distribution{ID: "dist-1", Set: mustSet(t, map[string]int{"A": 100})}
	require.NoError(t, store.CreateDistribution(ctx, d))

	stale := *d
	next := mustSet(t, map[string]int{"A": 60, "B": 40})

	d.Set = next
	require.NoError(t, store.RecordChange(ctx, d, &ChangeRecord{Kind: ChangeKindEdit, ChangedKey: "A", Before: stale.Set, After: next}))

	stale.Set = next
	err := store.RecordChange(ctx, &stale, &ChangeRecord{Kind: ChangeKindEdit, ChangedKey: "A", Before: stale.Set, After: next})
	assert.ErrorIs(t, err, ErrVersionConflict)

	history, err := store.ListChanges(ctx, "dist-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected change must not be recorded")
}

func TestStorage_RecordChange_NotFound(t *testing.T) {
	store := newTestStore(t)

	set := mustSet(t, map[string]int{"A": 100})
	err := store.RecordChange(context.Background(),
		&Distribution{ID: "ghost", Version: 1, Set: set},
		&ChangeRecord{Kind: ChangeKindReset, Before: set, After: set},
	)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ListChanges_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := &Distribution{ID: "dist-1", Set: mustSet(t, nil)}
	require.NoError(t, store.CreateDistribution(ctx, d))

	for _, v := range []int{40, 60, 80} {
		before := d.Set
		d.Set = mustSet(t, map[string]int{"A": v, "B": 100 - v})
		require.NoError(t, store.RecordChange(ctx, d, &ChangeRecord{
			Kind:       ChangeKindEdit,
			ChangedKey: "A",
			Before:     before,
			After:      d.Set,
		}))
	}

	history, err := store.ListChanges(ctx, "dist-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(4), history[0].Version)
	assert.Equal(t, int64(3), history[1].Version)
}

func TestStorage_DeleteDistribution_CascadesHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := &Distribution{ID: "dist-1", Set: mustSet(t, map[string]int{"A": 100})}
	require.NoError(t, store.CreateDistribution(ctx, d))
	before := d.Set
	d.Set = mustSet(t, map[string]int{"A": 50, "B": 50})
	require.NoError(t, store.RecordChange(ctx, d, &ChangeRecord{Kind: ChangeKindEdit, ChangedKey: "A", Before: before, After: d.Set}))

	deleted, err := store.DeleteDistribution(ctx, "dist-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	var remaining int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM distribution_changes").Scan(&remaining))
	assert.Zero(t, remaining)

	deleted, err = store.DeleteDistribution(ctx, "dist-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMockRepository_MatchesStorageSemantics(t *testing.T) {
	mock := NewMockRepository()
	ctx := context.Background()

	d := &Distribution{ID: "m1", Set: mustSet(t, map[string]int{"A": 100})}
	require.NoError(t, mock.CreateDistribution(ctx, d))

	stale := *d
	d.Set = mustSet(t, map[string]int{"A": 40, "B": 60})
	require.NoError(t, mock.RecordChange(ctx, d, &ChangeRecord{Kind: ChangeKindEdit, Before: stale.Set, After: d.Set}))
	assert.ErrorIs(t, mock.RecordChange(ctx, &stale, &ChangeRecord{}), ErrVersionConflict)

	got, err := mock.GetDistribution(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	got.Set.Buckets[0].Value = 0
	again, err := mock.GetDistribution(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 40, again.Set.Buckets[0].Value, "mock must hand out copies")

	missing, err := mock.GetDistribution(ctx, "none")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
