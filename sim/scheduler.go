package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/db"
	"github.com/lockstepdb/lockstep/storage"
	"github.com/lockstepdb/lockstep/telemetry"
	"github.com/lockstepdb/lockstep/wal"
)

// Params are the knobs of a simulation run. Probabilities are assumed to
// lie in [0, 1] and counts to be positive; validation happens at the
// configuration layer before a Scheduler is built.
type Params struct {
	Cycles        int
	TransSize     int
	Slots         int
	StartProb     float64
	WriteProb     float64
	RollbackProb  float64
	BlockTimeout  int
	FlushInterval int
	Seed          int64
}

// RecordPublisher receives every record the moment it is appended to the
// recovery log. Implementations must not block the scheduler.
type RecordPublisher interface {
	PublishRecord(rec wal.Record)
}

// Scheduler drives the round-based simulation. It is single-threaded,
// cooperative, and deterministic: all randomness comes from one seeded
// source, and within a cycle transactions are stepped in admission order.
// The mutex only serializes admin-side reads against the cycle loop.
type Scheduler struct {
	mu sync.Mutex

	params    Params
	rng       *rand.Rand
	store     *db.SlotStore
	locks     *db.LockTable
	log       *wal.RecoveryLog
	artifacts storage.ArtifactStore
	stats     *Stats
	publisher RecordPublisher

	active  []*Transaction
	nextTID uint64
	cycle   int
}

// NewScheduler builds a scheduler over a zeroed store. Recover restores
// persisted state; publisher may be nil.
func NewScheduler(params Params, artifacts storage.ArtifactStore, stats *Stats, publisher RecordPublisher) *Scheduler {
	store := db.NewSlotStore(params.Slots)
	return &Scheduler{
		params:    params,
		rng:       rand.New(rand.NewSource(params.Seed)),
		store:     store,
		locks:     db.NewLockTable(),
		log:       wal.NewRecoveryLog(artifacts),
		artifacts: artifacts,
		stats:     stats,
		publisher: publisher,
	}
}

// Recover restores the persisted database snapshot, loads the persisted
// recovery log, and replays it on top of the snapshot. Absent artifacts
// mean a fresh start. Must be called before Run.
func (s *Scheduler) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.artifacts.LoadState(s.params.Slots)
	if err != nil {
		return fmt.Errorf("restore database snapshot: %w", err)
	}
	s.store = db.NewSlotStoreFromValues(values)

	if err := s.log.Load(); err != nil {
		return err
	}

	applied, err := s.log.Replay(s.store)
	if err != nil {
		return err
	}
	telemetry.ReplayedRecordsTotal.Add(float64(applied))

	log.Info().
		Int("log_records", s.log.Len()).
		Int("mutations_applied", applied).
		Msg("Recovery complete")
	return nil
}

// Run executes the configured number of cycles, then flushes the log and
// persists the database. Any error aborts the run immediately.
func (s *Scheduler) Run() error {
	log.Info().
		Int("cycles", s.params.Cycles).
		Int("slots", s.params.Slots).
		Int("trans_size", s.params.TransSize).
		Int64("seed", s.params.Seed).
		Msg("Simulation starting")

	for s.cycle = 0; s.cycle < s.params.Cycles; s.cycle++ {
		if err := s.runCycle(); err != nil {
			return fmt.Errorf("cycle %d: %w", s.cycle, err)
		}
	}

	if err := s.shutdown(); err != nil {
		return err
	}

	snapshot := s.stats.Snapshot()
	log.Info().
		Uint64("started", snapshot.Started).
		Uint64("committed", snapshot.Committed).
		Uint64("rolled_back", snapshot.RolledBack).
		Uint64("conflicts", snapshot.Conflicts).
		Int("log_records", snapshot.LogRecords).
		Int("slots_set", snapshot.SlotsSet).
		Msg("Simulation complete")
	return nil
}

// runCycle executes one round: admission, one step per active transaction
// in admission order, then the periodic checkpoint.
func (s *Scheduler) runCycle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	if s.rng.Float64() < s.params.StartProb {
		s.admit()
	}

	// Commit and rollback remove entries from the active set mid-cycle,
	// so the pass iterates a snapshot taken before the first step.
	pass := make([]*Transaction, len(s.active))
	copy(pass, s.active)
	for _, txn := range pass {
		if err := s.step(txn); err != nil {
			return err
		}
	}

	if s.cycle%s.params.FlushInterval == 0 {
		if err := s.log.Flush(); err != nil {
			return err
		}
		telemetry.LogFlushesTotal.Inc()
	}

	s.finishCycle(start)
	return nil
}

func (s *Scheduler) finishCycle(start time.Time) {
	blocked := 0
	for _, txn := range s.active {
		if txn.State == StateBlocked {
			blocked++
		}
	}
	slotsSet := 0
	for _, v := range s.store.Values() {
		if v == db.SlotSet {
			slotsSet++
		}
	}

	telemetry.CyclesTotal.Inc()
	telemetry.ActiveTransactions.Set(float64(len(s.active)))
	telemetry.BlockedTransactions.Set(float64(blocked))
	telemetry.CycleDurationSeconds.Observe(time.Since(start).Seconds())

	s.stats.cycleDone(s.cycle, len(s.active), blocked, s.log.Len(), slotsSet, s.log.Flushes())
}

// admit creates a transaction with the next tid and appends its Start
// record.
func (s *Scheduler) admit() {
	s.nextTID++
	txn := &Transaction{
		TID:           s.nextTID,
		State:         StateActive,
		AdmittedCycle: s.cycle,
	}
	s.active = append(s.active, txn)
	s.append(wal.Start(txn.TID))

	s.stats.txnStarted()
	telemetry.TxnTotal.With("started").Inc()
	log.Debug().Uint64("tid", txn.TID).Int("cycle", s.cycle).Msg("Transaction admitted")
}

// step advances one transaction by one operation. A transaction counting
// down its block timeout is skipped outright; one whose countdown has
// expired retries the exact operation it blocked on. Every stepped
// transaction is then subject to the rollback and commit checks,
// whatever the operation's outcome.
func (s *Scheduler) step(txn *Transaction) error {
	var op pendingOp
	if txn.State == StateBlocked {
		if txn.WaitCycles > 0 {
			txn.WaitCycles--
			return nil
		}
		op = txn.unblock()
	} else {
		op = pendingOp{Slot: s.rng.Intn(s.params.Slots), Kind: OpRead}
		if s.rng.Float64() < s.params.WriteProb {
			op.Kind = OpWrite
		}
	}

	ok, err := s.attempt(txn, op)
	if err != nil {
		return err
	}
	s.stats.operation(!ok)
	if ok {
		txn.Ops++
		telemetry.OperationsTotal.With(op.Kind.String(), "ok").Inc()
	} else {
		txn.block(op, s.params.BlockTimeout)
		telemetry.OperationsTotal.With(op.Kind.String(), "conflict").Inc()
		log.Debug().
			Uint64("tid", txn.TID).
			Int("slot", op.Slot).
			Str("kind", op.Kind.String()).
			Int("timeout", s.params.BlockTimeout).
			Msg("Lock conflict, transaction blocked")
	}

	if s.rng.Float64() < s.params.RollbackProb {
		s.finish(txn, StateRolledBack)
		return nil
	}
	if len(s.active) >= s.params.TransSize {
		s.finish(txn, StateCommitted)
	}
	return nil
}

// attempt acquires the operation's lock and, on success, performs the slot
// access and appends its record. A lock conflict is reported as ok=false,
// never as an error; errors are reserved for slot bounds violations, which
// abort the run.
func (s *Scheduler) attempt(txn *Transaction, op pendingOp) (bool, error) {
	if op.Kind == OpWrite {
		if !s.locks.AcquireExclusive(txn.TID, op.Slot) {
			return false, nil
		}
		if err := s.store.Write(op.Slot, db.SlotSet); err != nil {
			return false, err
		}
		s.append(wal.Write(txn.TID, op.Slot))
		return true, nil
	}

	if !s.locks.AcquireShared(txn.TID, op.Slot) {
		return false, nil
	}
	value, err := s.store.Read(op.Slot)
	if err != nil {
		return false, err
	}
	s.append(wal.Read(txn.TID, op.Slot, value))
	return true, nil
}

// finish moves a transaction to a terminal state: appends the terminal
// record, releases every lock it holds, and removes it from the active
// set.
func (s *Scheduler) finish(txn *Transaction, state TxnState) {
	if state == StateCommitted {
		s.append(wal.Commit(txn.TID))
		telemetry.TxnTotal.With("committed").Inc()
	} else {
		s.append(wal.Rollback(txn.TID))
		telemetry.TxnTotal.With("rolled_back").Inc()
	}
	s.locks.ReleaseAll(txn.TID)
	txn.State = state
	s.remove(txn)

	s.stats.txnFinished(TxnSummary{
		TID:           txn.TID,
		Outcome:       state,
		OutcomeName:   state.String(),
		Ops:           txn.Ops,
		Conflicts:     txn.Conflicts,
		AdmittedCycle: txn.AdmittedCycle,
		FinishedCycle: s.cycle,
	})
	log.Debug().
		Uint64("tid", txn.TID).
		Str("outcome", state.String()).
		Int("operations", txn.Ops).
		Int("cycle", s.cycle).
		Msg("Transaction finished")
}

func (s *Scheduler) remove(txn *Transaction) {
	for i, candidate := range s.active {
		if candidate == txn {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) append(rec wal.Record) {
	s.log.Append(rec)
	telemetry.LogRecordsTotal.With(rec.Kind.String()).Inc()
	if s.publisher != nil {
		s.publisher.PublishRecord(rec)
	}
}

// shutdown flushes the log one final time and persists the database
// snapshot.
func (s *Scheduler) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Flush(); err != nil {
		return err
	}
	telemetry.LogFlushesTotal.Inc()

	if err := s.artifacts.SaveState(s.store.Values()); err != nil {
		return fmt.Errorf("persist database snapshot: %w", err)
	}
	return nil
}

// LogRecords returns a copy of the recovery log for the admin server.
func (s *Scheduler) LogRecords() []wal.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Records()
}

// StoreValues returns a copy of the current slot values.
func (s *Scheduler) StoreValues() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Values()
}

// LockSnapshot returns the current lock table contents.
func (s *Scheduler) LockSnapshot() []db.LockInfo {
	return s.locks.Snapshot()
}
