package db

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewID_Monotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id <= prev {
			t.Fatalf("NewID() = %s, not after %s", id, prev)
		}
		prev = id
	}
}

func TestSnapshots_InsertGetLatest(t *testing.T) {
	db := openTestDB(t)

	first := &SnapshotRow{Store: "default", Version: 1, Tick: 3, ChunkCount: 2, TerritoryCount: 1, Body: []byte(`{"a":1}`), CreatedAt: 100}
	second := &SnapshotRow{Store: "default", Version: 1, Tick: 9, ChunkCount: 4, TerritoryCount: 2, Body: []byte(`{"a":2}`), CreatedAt: 100}
	other := &SnapshotRow{Store: "other", Version: 1, Body: []byte(`{}`)}
	for _, s := range []*SnapshotRow{first, second, other} {
		require.NoError(t, InsertSnapshot(db, s))
		require.NotEmpty(t, s.ID)
	}
	assert.NotZero(t, other.CreatedAt)

	got, err := GetSnapshot(db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// Same created_at: the later id wins.
	latest, err := LatestSnapshot(db, "default")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, []byte(`{"a":2}`), latest.Body)

	_, err = GetSnapshot(db, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = LatestSnapshot(db, "empty")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListSnapshots(t *testing.T) {
	db := openTestDB(t)
	var ids []string
	for i := 0; i < 5; i++ {
		s := &SnapshotRow{Store: "default", Version: 1, Tick: int64(i), Body: []byte(`{}`), CreatedAt: int64(100 + i)}
		require.NoError(t, InsertSnapshot(db, s))
		ids = append(ids, s.ID)
	}

	page, total, err := ListSnapshots(db, "default", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
	assert.Nil(t, page[0].Body)

	empty, total, err := ListSnapshots(db, "nothing", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPruneSnapshots(t *testing.T) {
	db := openTestDB(t)
	var ids []string
	for i := 0; i < 4; i++ {
		s := &SnapshotRow{Store: "default", Version: 1, Body: []byte(`{}`), CreatedAt: int64(10 + i)}
		require.NoError(t, InsertSnapshot(db, s))
		ids = append(ids, s.ID)
	}
	require.NoError(t, InsertSnapshot(db, &SnapshotRow{Store: "other", Version: 1, Body: []byte(`{}`), CreatedAt: 1}))

	n, err := PruneSnapshots(db, "default", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, total, err := ListSnapshots(db, "default", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	_, total, err = ListSnapshots(db, "other", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = PruneSnapshots(db, "default", 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestArchiveEvents(t *testing.T) {
	db := openTestDB(t)
	events := []memory.Event{
		{Sequence: 1, Tick: 0, Type: memory.EventRegister, Details: map[string]any{"id": "a"}},
		{Sequence: 2, Tick: 0, Type: memory.EventRegister, Details: map[string]any{"id": "b"}},
		{Sequence: 3, Tick: 1, Type: memory.EventDecay},
	}

	n, err := ArchiveEvents(db, "default", events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-archiving overlapping sequences only writes new rows.
	n, err = ArchiveEvents(db, "default", append(events[2:], memory.Event{Sequence: 4, Tick: 2, Type: memory.EventPrune}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ArchiveEvents(db, "default", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := ListEvents(db, "default", EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	var details map[string]any
	require.NoError(t, json.Unmarshal(all[0].Details, &details))
	assert.Equal(t, "a", details["id"])
	assert.Nil(t, all[2].Details)

	registers, err := ListEvents(db, "default", EventFilter{Type: "register"})
	require.NoError(t, err)
	assert.Len(t, registers, 2)

	tail, err := ListEvents(db, "default", EventFilter{AfterSequence: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Sequence)

	none, err := ListEvents(db, "other", EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDrills(t *testing.T) {
	db := openTestDB(t)

	d1 := &DrillRow{Store: "default", Status: "ok", SnapshotID: "snap1", RunDir: "/tmp/run1", Report: "# r1", CreatedAt: 50}
	d2 := &DrillRow{Store: "default", Status: "alert", Anomalies: 2, CreatedAt: 60}
	require.NoError(t, InsertDrill(db, d1))
	require.NoError(t, InsertDrill(db, d2))

	drills, err := ListDrills(db, "default", 10)
	require.NoError(t, err)
	require.Len(t, drills, 2)
	assert.Equal(t, d2.ID, drills[0].ID)
	assert.Equal(t, 2, drills[0].Anomalies)
	assert.Equal(t, "", drills[0].SnapshotID)
	assert.Equal(t, "snap1", drills[1].SnapshotID)
	assert.Equal(t, "/tmp/run1", drills[1].RunDir)
	assert.Empty(t, drills[1].Report)
}
