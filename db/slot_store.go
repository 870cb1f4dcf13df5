package db

import (
	"errors"
	"fmt"
)

// Slot values. The store is an undifferentiated array of binary-valued slots;
// anything richer belongs to the caller.
const (
	SlotUnset = 0
	SlotSet   = 1
)

// DefaultSlots is the reference sizing of the database.
const DefaultSlots = 32

// ErrSlotOutOfRange indicates a slot index outside [0, Size).
// Slot indices are generated internally, so hitting this is a core bug,
// not a recoverable condition.
var ErrSlotOutOfRange = errors.New("slot index out of range")

// SlotStore is the fixed-size value array backing the simulation.
// It performs no locking of its own: callers must already hold the
// appropriate lock in the LockTable before touching a slot.
type SlotStore struct {
	slots []int
}

// NewSlotStore creates a zero-initialized store with n slots.
func NewSlotStore(n int) *SlotStore {
	return &SlotStore{slots: make([]int, n)}
}

// NewSlotStoreFromValues creates a store restored from a persisted snapshot.
func NewSlotStoreFromValues(values []int) *SlotStore {
	slots := make([]int, len(values))
	copy(slots, values)
	return &SlotStore{slots: slots}
}

// Size returns the number of slots.
func (s *SlotStore) Size() int {
	return len(s.slots)
}

// Read returns the value of the given slot.
func (s *SlotStore) Read(slot int) (int, error) {
	if slot < 0 || slot >= len(s.slots) {
		return 0, fmt.Errorf("%w: read slot %d of %d", ErrSlotOutOfRange, slot, len(s.slots))
	}
	return s.slots[slot], nil
}

// Write sets the value of the given slot.
func (s *SlotStore) Write(slot, value int) error {
	if slot < 0 || slot >= len(s.slots) {
		return fmt.Errorf("%w: write slot %d of %d", ErrSlotOutOfRange, slot, len(s.slots))
	}
	s.slots[slot] = value
	return nil
}

// Values returns a copy of all slot values in slot order.
// This is the record persisted as the database snapshot artifact.
func (s *SlotStore) Values() []int {
	out := make([]int, len(s.slots))
	copy(out, s.slots)
	return out
}
