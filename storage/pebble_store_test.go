package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lockstepdb/lockstep/wal"
)

func newTestPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()

	store, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestPebbleStore_StateRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestPebbleStore(t)
	values := []int{1, 0, 0, 1}

	require.NoError(t, store.SaveState(values))

	loaded, err := store.LoadState(len(values))
	require.NoError(t, err)
	require.Equal(t, values, loaded)
}

func TestPebbleStore_LoadState_AbsentMeansZero(t *testing.T) {
	t.Parallel()

	store := newTestPebbleStore(t)

	loaded, err := store.LoadState(16)
	require.NoError(t, err)
	require.Equal(t, make([]int, 16), loaded)
}

func TestPebbleStore_LogRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestPebbleStore(t)
	records := []wal.Record{
		wal.Start(1),
		wal.Read(1, 3, 1),
		wal.Write(1, 3),
		wal.Rollback(1),
	}

	require.NoError(t, store.SaveLog(records))

	loaded, err := store.LoadLog()
	require.NoError(t, err)
	require.Equal(t, records, loaded)
}

func TestPebbleStore_LoadLog_AbsentMeansEmpty(t *testing.T) {
	t.Parallel()

	store := newTestPebbleStore(t)

	loaded, err := store.LoadLog()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestPebbleStore_SaveLog_Overwrites(t *testing.T) {
	t.Parallel()

	store := newTestPebbleStore(t)

	require.NoError(t, store.SaveLog([]wal.Record{wal.Start(1)}))
	require.NoError(t, store.SaveLog([]wal.Record{wal.Start(1), wal.Write(1, 0)}))

	loaded, err := store.LoadLog()
	require.NoError(t, err)
	require.Equal(t, []wal.Record{wal.Start(1), wal.Write(1, 0)}, loaded)
}
