// Package sim drives the round-based transaction simulation: admission,
// per-cycle operation steps, blocking with timeout, commit and rollback.
package sim

import "fmt"

// TxnState tracks a transaction through its lifecycle:
// Active -> {Blocked <-> Active} -> {Committed | RolledBack}.
// Committed and RolledBack are terminal; the transaction leaves the active
// set the moment it enters either.
type TxnState uint8

const (
	StateActive TxnState = iota
	StateBlocked
	StateCommitted
	StateRolledBack
)

func (s TxnState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateBlocked:
		return "blocked"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// OpKind is the kind of a per-cycle operation.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	if k == OpWrite {
		return "write"
	}
	return "read"
}

// pendingOp is the operation a blocked transaction retries once its
// timeout expires: the identical slot and kind it failed on.
type pendingOp struct {
	Slot int
	Kind OpKind
}

// Transaction is the ephemeral per-transaction state owned by the
// scheduler. Identity is the monotonically assigned TID.
type Transaction struct {
	TID           uint64
	State         TxnState
	Ops           int // Completed operations
	Conflicts     int // Lock acquisitions that failed
	WaitCycles    int // Remaining block timeout
	AdmittedCycle int

	pending pendingOp
}

// block transitions the transaction to Blocked for timeout cycles, holding
// on to the operation it must retry.
func (t *Transaction) block(op pendingOp, timeout int) {
	t.State = StateBlocked
	t.WaitCycles = timeout
	t.pending = op
	t.Conflicts++
}

// unblock returns the transaction to Active and hands back the operation
// it was blocked on.
func (t *Transaction) unblock() pendingOp {
	t.State = StateActive
	return t.pending
}
