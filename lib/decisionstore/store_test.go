package decisionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	base := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	decisions := []Decision{
		{CycleID: "c1", ItemID: "1", Brand: "BMW", Title: "320i", Outcome: "accept", PaintedCount: 1, DecidedAt: base},
		{CycleID: "c1", ItemID: "2", Brand: "BMW", Title: "520d", Outcome: "reject_hood", HoodDamageKind: "painted", DecidedAt: base.Add(time.Second)},
		{CycleID: "c2", ItemID: "3", Brand: "Audi", Title: "A4", Outcome: "accept", DecidedAt: base.Add(time.Minute)},
	}
	for _, d := range decisions {
		require.NoError(t, store.Record(ctx, d))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "3", recent[0].ItemID)
	require.Equal(t, "2", recent[1].ItemID)
	require.Equal(t, "painted", recent[1].HoodDamageKind)
	require.True(t, base.Add(time.Minute).Equal(recent[0].DecidedAt))

	counts, err := store.CountByOutcome(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"accept": 2, "reject_hood": 1}, counts)
}

func TestOpenDBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "decisions.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening applies the schema idempotently
	db, err = OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenDB("")
	require.Error(t, err)
}
