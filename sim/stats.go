package sim

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TxnSummary is the terminal record of a finished transaction, kept for
// the recent-transactions admin view.
type TxnSummary struct {
	TID           uint64   `json:"tid"`
	Outcome       TxnState `json:"-"`
	OutcomeName   string   `json:"outcome"`
	Ops           int      `json:"operations"`
	Conflicts     int      `json:"conflicts"`
	AdmittedCycle int      `json:"admitted_cycle"`
	FinishedCycle int      `json:"finished_cycle"`
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Cycle      int    `json:"cycle"`
	Started    uint64 `json:"transactions_started"`
	Committed  uint64 `json:"transactions_committed"`
	RolledBack uint64 `json:"transactions_rolled_back"`
	Active     int    `json:"transactions_active"`
	Blocked    int    `json:"transactions_blocked"`
	Operations uint64 `json:"operations_total"`
	Conflicts  uint64 `json:"lock_conflicts_total"`
	LogRecords int    `json:"log_records"`
	LogFlushes uint64 `json:"log_flushes"`
	SlotsSet   int    `json:"slots_set"`
}

// Stats aggregates run counters and retains the most recently finished
// transactions in an LRU ring. Safe for concurrent reads from the admin
// server while the scheduler writes.
type Stats struct {
	mu sync.Mutex

	cycle      int
	started    uint64
	committed  uint64
	rolledBack uint64
	active     int
	blocked    int
	operations uint64
	conflicts  uint64
	logRecords int
	logFlushes uint64
	slotsSet   int

	recent *lru.Cache[uint64, TxnSummary]
}

// NewStats creates a collector retaining up to recentSize finished
// transactions.
func NewStats(recentSize int) (*Stats, error) {
	recent, err := lru.New[uint64, TxnSummary](recentSize)
	if err != nil {
		return nil, err
	}
	return &Stats{recent: recent}, nil
}

func (s *Stats) txnStarted() {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

func (s *Stats) txnFinished(summary TxnSummary) {
	s.mu.Lock()
	if summary.Outcome == StateCommitted {
		s.committed++
	} else {
		s.rolledBack++
	}
	s.recent.Add(summary.TID, summary)
	s.mu.Unlock()
}

func (s *Stats) operation(conflict bool) {
	s.mu.Lock()
	s.operations++
	if conflict {
		s.conflicts++
	}
	s.mu.Unlock()
}

func (s *Stats) cycleDone(cycle, active, blocked, logRecords, slotsSet int, logFlushes uint64) {
	s.mu.Lock()
	s.cycle = cycle
	s.active = active
	s.blocked = blocked
	s.logRecords = logRecords
	s.slotsSet = slotsSet
	s.logFlushes = logFlushes
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Cycle:      s.cycle,
		Started:    s.started,
		Committed:  s.committed,
		RolledBack: s.rolledBack,
		Active:     s.active,
		Blocked:    s.blocked,
		Operations: s.operations,
		Conflicts:  s.conflicts,
		LogRecords: s.logRecords,
		LogFlushes: s.logFlushes,
		SlotsSet:   s.slotsSet,
	}
}

// Recent returns the retained finished transactions, most recent last.
func (s *Stats) Recent() []TxnSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.recent.Keys()
	out := make([]TxnSummary, 0, len(keys))
	for _, tid := range keys {
		if summary, ok := s.recent.Peek(tid); ok {
			out = append(out, summary)
		}
	}
	return out
}
