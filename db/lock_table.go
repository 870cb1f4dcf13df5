package db

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

const lockShards = 64

// LockTable implements per-slot shared/exclusive locking using lock-free
// concurrent maps plus a reverse index for bulk release. It is the sole
// arbiter of whether an operation may proceed; conflicts are ordinary
// boolean outcomes, never errors. Blocking is a caller-level decision.
type LockTable struct {
	// exclusive: slot -> holding txn
	exclusive *xsync.MapOf[int, uint64]

	// shared: slot -> set of holding txns
	shared *xsync.MapOf[int, *xsync.MapOf[uint64, struct{}]]

	// byTxn: reverse index txn -> set of slots it holds (either mode)
	byTxn *xsync.MapOf[uint64, *xsync.MapOf[int, struct{}]]

	// Sharded locks serialize the compound check-and-set per slot
	slotLocks [lockShards]sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		exclusive: xsync.NewMapOf[int, uint64](),
		shared:    xsync.NewMapOf[int, *xsync.MapOf[uint64, struct{}]](),
		byTxn:     xsync.NewMapOf[uint64, *xsync.MapOf[int, struct{}]](),
	}
}

// slotLockFor returns the sharded mutex guarding a slot's lock state.
func (t *LockTable) slotLockFor(slot int) *sync.Mutex {
	return &t.slotLocks[uint(slot)%lockShards]
}

// AcquireShared records tid in the slot's shared set iff no exclusive lock
// is held on the slot. There is no re-entrancy: a transaction holding the
// exclusive lock on a slot cannot shared-lock it on top.
func (t *LockTable) AcquireShared(tid uint64, slot int) bool {
	mu := t.slotLockFor(slot)
	mu.Lock()
	defer mu.Unlock()

	if _, held := t.exclusive.Load(slot); held {
		return false
	}

	holders, _ := t.shared.LoadOrStore(slot, xsync.NewMapOf[uint64, struct{}]())
	holders.Store(tid, struct{}{})
	t.indexSlot(tid, slot)
	return true
}

// AcquireExclusive sets the slot's exclusive holder to tid iff neither an
// exclusive lock nor any shared lock is held on the slot. This is strictly
// stronger than a textbook upgrade rule: a transaction cannot upgrade its
// own shared lock without releasing it first.
func (t *LockTable) AcquireExclusive(tid uint64, slot int) bool {
	mu := t.slotLockFor(slot)
	mu.Lock()
	defer mu.Unlock()

	if _, held := t.exclusive.Load(slot); held {
		return false
	}
	if holders, ok := t.shared.Load(slot); ok && holders.Size() > 0 {
		return false
	}

	t.exclusive.Store(slot, tid)
	t.indexSlot(tid, slot)
	return true
}

// ReleaseAll removes tid from every slot's exclusive holder and shared set.
// Idempotent: safe to call on a transaction holding no locks, and calling
// twice is equivalent to calling once.
func (t *LockTable) ReleaseAll(tid uint64) {
	txnSlots, ok := t.byTxn.Load(tid)
	if !ok {
		return
	}

	// Collect first to avoid mutating the map while ranging over it
	var slots []int
	txnSlots.Range(func(slot int, _ struct{}) bool {
		slots = append(slots, slot)
		return true
	})

	for _, slot := range slots {
		mu := t.slotLockFor(slot)
		mu.Lock()
		if holder, held := t.exclusive.Load(slot); held && holder == tid {
			t.exclusive.Delete(slot)
		}
		if holders, ok := t.shared.Load(slot); ok {
			holders.Delete(tid)
			if holders.Size() == 0 {
				t.shared.Delete(slot)
			}
		}
		mu.Unlock()
	}

	t.byTxn.Delete(tid)
}

// ExclusiveHolder returns the transaction holding the exclusive lock on a
// slot, if any.
func (t *LockTable) ExclusiveHolder(slot int) (uint64, bool) {
	return t.exclusive.Load(slot)
}

// SharedHolders returns the transactions holding shared locks on a slot.
func (t *LockTable) SharedHolders(slot int) []uint64 {
	holders, ok := t.shared.Load(slot)
	if !ok {
		return nil
	}

	var tids []uint64
	holders.Range(func(tid uint64, _ struct{}) bool {
		tids = append(tids, tid)
		return true
	})
	return tids
}

// HeldSlots returns all slots on which tid holds a lock in either mode.
func (t *LockTable) HeldSlots(tid uint64) []int {
	txnSlots, ok := t.byTxn.Load(tid)
	if !ok {
		return nil
	}

	var slots []int
	txnSlots.Range(func(slot int, _ struct{}) bool {
		slots = append(slots, slot)
		return true
	})
	return slots
}

// LockInfo describes the lock state of one slot for inspection APIs.
type LockInfo struct {
	Slot      int      `json:"slot"`
	Exclusive uint64   `json:"exclusive,omitempty"`
	Shared    []uint64 `json:"shared,omitempty"`
}

// Snapshot returns the lock state of every currently locked slot.
func (t *LockTable) Snapshot() []LockInfo {
	seen := make(map[int]*LockInfo)

	t.exclusive.Range(func(slot int, tid uint64) bool {
		seen[slot] = &LockInfo{Slot: slot, Exclusive: tid}
		return true
	})
	t.shared.Range(func(slot int, holders *xsync.MapOf[uint64, struct{}]) bool {
		info, ok := seen[slot]
		if !ok {
			info = &LockInfo{Slot: slot}
			seen[slot] = info
		}
		holders.Range(func(tid uint64, _ struct{}) bool {
			info.Shared = append(info.Shared, tid)
			return true
		})
		return true
	})

	out := make([]LockInfo, 0, len(seen))
	for _, info := range seen {
		out = append(out, *info)
	}
	return out
}

// indexSlot records slot in tid's reverse index.
func (t *LockTable) indexSlot(tid uint64, slot int) {
	txnSlots, _ := t.byTxn.LoadOrStore(tid, xsync.NewMapOf[int, struct{}]())
	txnSlots.Store(slot, struct{}{})
}
