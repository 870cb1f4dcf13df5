package wal

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/db"
)

// Persister stores and restores the full record sequence. Each save is a
// snapshot of the whole log, overwriting any prior persisted content — this
// is not an incremental append. A missing artifact is not an error: Load
// returns an empty sequence for the fresh-start case.
type Persister interface {
	SaveLog(records []Record) error
	LoadLog() ([]Record, error)
}

// RecoveryLog is the in-memory append-only sequence of operation records.
// Records are immutable once appended; insertion order is the durability
// order and a valid serialization witness of the simulated execution.
type RecoveryLog struct {
	records []Record
	store   Persister
	flushes uint64
}

// NewRecoveryLog creates an empty log flushing through the given persister.
func NewRecoveryLog(store Persister) *RecoveryLog {
	return &RecoveryLog{store: store}
}

// Append adds a record to the end of the log.
func (l *RecoveryLog) Append(rec Record) {
	l.records = append(l.records, rec)
}

// Len returns the number of records appended so far.
func (l *RecoveryLog) Len() int {
	return len(l.records)
}

// Records returns a copy of the full record sequence in append order.
func (l *RecoveryLog) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Flushes returns how many snapshots have been persisted.
func (l *RecoveryLog) Flushes() uint64 {
	return l.flushes
}

// Flush persists the full in-memory sequence, replacing the prior snapshot.
func (l *RecoveryLog) Flush() error {
	if err := l.store.SaveLog(l.records); err != nil {
		return fmt.Errorf("flush recovery log: %w", err)
	}
	l.flushes++
	log.Debug().Int("records", len(l.records)).Uint64("flushes", l.flushes).Msg("Recovery log flushed")
	return nil
}

// Load replaces the in-memory sequence with the persisted one. An absent
// artifact loads as an empty log.
func (l *RecoveryLog) Load() error {
	records, err := l.store.LoadLog()
	if err != nil {
		return fmt.Errorf("load recovery log: %w", err)
	}
	l.records = records
	return nil
}

// Replay applies the log to a slot store, in append order, and returns the
// number of slot mutations applied. Write records set the referenced slot;
// Rollback records unset the transaction's most recently touched slot (the
// slot referenced by its latest Read or Write record). Start, Read and
// Commit records mutate nothing.
//
// Rollback replay is deliberately lossy: it does not reconstruct the slot's
// actual pre-write value, so a rollback whose preceding writes were lost to
// log truncation leaves the store inconsistent. This reproduces the
// reference recovery semantics; do not "fix" it here.
func (l *RecoveryLog) Replay(store *db.SlotStore) (int, error) {
	lastTouched := make(map[uint64]int)
	applied := 0

	for i, rec := range l.records {
		switch rec.Kind {
		case KindWrite:
			if err := store.Write(rec.Slot, db.SlotSet); err != nil {
				return applied, fmt.Errorf("replay record %d: %w", i, err)
			}
			lastTouched[rec.TID] = rec.Slot
			applied++

		case KindRead:
			lastTouched[rec.TID] = rec.Slot

		case KindRollback:
			slot, ok := lastTouched[rec.TID]
			if !ok {
				// Transaction never touched a slot; nothing to undo
				continue
			}
			if err := store.Write(slot, db.SlotUnset); err != nil {
				return applied, fmt.Errorf("replay record %d: %w", i, err)
			}
			applied++
		}
	}

	return applied, nil
}
