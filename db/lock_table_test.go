package db

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive_Success(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 5))

	holder, held := table.ExclusiveHolder(5)
	require.True(t, held)
	require.Equal(t, uint64(1), holder)
}

func TestAcquireExclusive_ConflictWithExclusive(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 5))
	require.False(t, table.AcquireExclusive(2, 5))

	// Original holder unchanged
	holder, held := table.ExclusiveHolder(5)
	require.True(t, held)
	require.Equal(t, uint64(1), holder)
}

func TestAcquireExclusive_ConflictWithShared(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireShared(1, 5))
	require.False(t, table.AcquireExclusive(2, 5))
}

func TestAcquireExclusive_NoSelfUpgrade(t *testing.T) {
	t.Parallel()

	// A transaction cannot upgrade its own shared lock without releasing it
	table := NewLockTable()
	require.True(t, table.AcquireShared(1, 5))
	require.False(t, table.AcquireExclusive(1, 5))

	table.ReleaseAll(1)
	require.True(t, table.AcquireExclusive(1, 5))
}

func TestAcquireShared_Concurrent(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireShared(1, 5))
	require.True(t, table.AcquireShared(2, 5))
	require.True(t, table.AcquireShared(3, 5))

	require.ElementsMatch(t, []uint64{1, 2, 3}, table.SharedHolders(5))
}

func TestAcquireShared_ConflictWithExclusive(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 5))
	require.False(t, table.AcquireShared(2, 5))
	require.False(t, table.AcquireShared(1, 5))
}

func TestModesAreMutuallyExclusive(t *testing.T) {
	t.Parallel()

	// A slot never reports both an exclusive holder and shared holders
	table := NewLockTable()

	require.True(t, table.AcquireExclusive(1, 7))
	_, held := table.ExclusiveHolder(7)
	require.True(t, held)
	require.Empty(t, table.SharedHolders(7))

	table.ReleaseAll(1)

	require.True(t, table.AcquireShared(2, 7))
	require.True(t, table.AcquireShared(3, 7))
	_, held = table.ExclusiveHolder(7)
	require.False(t, held)
	require.NotEmpty(t, table.SharedHolders(7))
}

func TestReleaseAll_MultipleSlots(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 0))
	require.True(t, table.AcquireShared(1, 1))
	require.True(t, table.AcquireShared(1, 2))
	require.True(t, table.AcquireShared(2, 2))

	table.ReleaseAll(1)

	_, held := table.ExclusiveHolder(0)
	require.False(t, held)
	require.Empty(t, table.SharedHolders(1))
	require.Empty(t, table.HeldSlots(1))

	// Other transaction's shared lock survives
	require.ElementsMatch(t, []uint64{2}, table.SharedHolders(2))
}

func TestReleaseAll_Idempotent(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 3))

	table.ReleaseAll(1)
	require.NotPanics(t, func() {
		table.ReleaseAll(1)
	})

	// Releasing an unknown transaction is a no-op
	require.NotPanics(t, func() {
		table.ReleaseAll(999)
	})

	require.True(t, table.AcquireExclusive(2, 3))
}

func TestHeldSlots(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.Empty(t, table.HeldSlots(1))

	require.True(t, table.AcquireExclusive(1, 4))
	require.True(t, table.AcquireShared(1, 9))

	require.ElementsMatch(t, []int{4, 9}, table.HeldSlots(1))
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	require.True(t, table.AcquireExclusive(1, 0))
	require.True(t, table.AcquireShared(2, 1))
	require.True(t, table.AcquireShared(3, 1))

	snapshot := table.Snapshot()
	require.Len(t, snapshot, 2)

	bySlot := make(map[int]LockInfo)
	for _, info := range snapshot {
		bySlot[info.Slot] = info
	}

	require.Equal(t, uint64(1), bySlot[0].Exclusive)
	require.Empty(t, bySlot[0].Shared)
	require.Zero(t, bySlot[1].Exclusive)
	require.ElementsMatch(t, []uint64{2, 3}, bySlot[1].Shared)
}

func TestConcurrentExclusive_SameSlot(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	numGoroutines := 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	var mu sync.Mutex
	var winners []uint64

	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			tid := uint64(idx + 1)
			if table.AcquireExclusive(tid, 0) {
				mu.Lock()
				winners = append(winners, tid)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	// Exactly one should win
	require.Len(t, winners, 1)
	holder, held := table.ExclusiveHolder(0)
	require.True(t, held)
	require.Equal(t, winners[0], holder)
}

func TestConcurrentReleaseAll(t *testing.T) {
	t.Parallel()

	table := NewLockTable()
	numTxns := 10
	slotsPerTxn := 10

	for i := 0; i < numTxns; i++ {
		tid := uint64(i + 1)
		for j := 0; j < slotsPerTxn; j++ {
			slot := i*slotsPerTxn + j
			require.True(t, table.AcquireExclusive(tid, slot))
		}
	}

	var wg sync.WaitGroup
	wg.Add(numTxns)
	for i := 0; i < numTxns; i++ {
		go func(idx int) {
			defer wg.Done()
			table.ReleaseAll(uint64(idx + 1))
		}(i)
	}
	wg.Wait()

	for slot := 0; slot < numTxns*slotsPerTxn; slot++ {
		_, held := table.ExclusiveHolder(slot)
		require.False(t, held)
	}
}
