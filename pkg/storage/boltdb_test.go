package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock/stackdock/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(id, project string, startedAt time.Time) *types.OperationRecord {
	return &types.OperationRecord{
		ID:          id,
		Type:        types.ActionUp,
		ProjectName: project,
		Status:      types.OperationPending,
		StartedAt:   startedAt,
	}
}

func TestSaveAndGetOperation(t *testing.T) {
	store := newTestStore(t)

	rec := record("op-1", "app", time.Now())
	require.NoError(t, store.SaveOperation(rec))

	got, err := store.GetOperation("op-1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", got.ID)
	assert.Equal(t, "app", got.ProjectName)
	assert.Equal(t, types.OperationPending, got.Status)
}

func TestGetOperationNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetOperation("missing")
	assert.ErrorContains(t, err, "operation not found")
}

func TestSaveOperationUpsertsStatusTransitions(t *testing.T) {
	store := newTestStore(t)

	rec := record("op-1", "app", time.Now())
	require.NoError(t, store.SaveOperation(rec))

	rec.Status = types.OperationCompleted
	rec.FinishedAt = time.Now()
	require.NoError(t, store.SaveOperation(rec))

	got, err := store.GetOperation("op-1")
	require.NoError(t, err)
	assert.Equal(t, types.OperationCompleted, got.Status)

	all, err := store.ListOperations("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "status transitions overwrite, never duplicate")
}

func TestListOperationsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.SaveOperation(record("op-1", "app", base)))
	require.NoError(t, store.SaveOperation(record("op-2", "other", base.Add(time.Minute))))
	require.NoError(t, store.SaveOperation(record("op-3", "app", base.Add(2*time.Minute))))

	all, err := store.ListOperations("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "op-3", all[0].ID)
	assert.Equal(t, "op-1", all[2].ID)

	limited, err := store.ListOperations("", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byProject, err := store.ListOperations("app", 0)
	require.NoError(t, err)
	require.Len(t, byProject, 2)
	assert.Equal(t, "op-3", byProject[0].ID)
	assert.Equal(t, "op-1", byProject[1].ID)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.SaveOperation(record("op-old", "app", old)))
	require.NoError(t, store.SaveOperation(record("op-new", "app", time.Now())))

	pruned, err := store.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	all, err := store.ListOperations("", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "op-new", all[0].ID)
}
