// Package wal implements the append-only recovery log that records every
// state-changing operation of the simulation, and the replay procedure that
// reconstructs the slot database from it after a restart.
package wal

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies the operation a record describes.
type Kind uint8

const (
	KindStart Kind = iota
	KindRead
	KindWrite
	KindCommit
	KindRollback
)

// TxnSentinelSlot marks transaction-scoped records (Start/Commit/Rollback)
// in the persisted artifact, which has no slot to reference.
const TxnSentinelSlot = -1

var (
	ErrUnknownKind     = errors.New("unknown record kind")
	ErrMalformedRecord = errors.New("malformed log record")
)

// Record is one entry in the recovery log. Only the fields relevant to the
// record's kind carry meaning: Slot for Read/Write, Value for Read. The
// constructors below are the intended way to build records.
type Record struct {
	TID   uint64 `json:"tid" msgpack:"tid"`
	Slot  int    `json:"slot" msgpack:"slot"`
	Value int    `json:"value,omitempty" msgpack:"value"`
	Kind  Kind   `json:"kind" msgpack:"kind"`
}

// Start records a transaction entering the active set.
func Start(tid uint64) Record {
	return Record{TID: tid, Slot: TxnSentinelSlot, Kind: KindStart}
}

// Read records a shared-locked read and the value it observed.
func Read(tid uint64, slot, value int) Record {
	return Record{TID: tid, Slot: slot, Value: value, Kind: KindRead}
}

// Write records an exclusive-locked write.
func Write(tid uint64, slot int) Record {
	return Record{TID: tid, Slot: slot, Kind: KindWrite}
}

// Commit records a transaction finalizing its effects.
func Commit(tid uint64) Record {
	return Record{TID: tid, Slot: TxnSentinelSlot, Kind: KindCommit}
}

// Rollback records a transaction discarding its effects.
func Rollback(tid uint64) Record {
	return Record{TID: tid, Slot: TxnSentinelSlot, Kind: KindRollback}
}

// String returns the operation code used in the persisted artifact.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindCommit:
		return "commit"
	case KindRollback:
		return "rollback"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps an operation code back to its Kind.
func ParseKind(code string) (Kind, error) {
	switch code {
	case "start":
		return KindStart, nil
	case "read":
		return KindRead, nil
	case "write":
		return KindWrite, nil
	case "commit":
		return KindCommit, nil
	case "rollback":
		return KindRollback, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, code)
	}
}

// MarshalCSV encodes the record as one row of the log artifact. Rows are
// variable arity: only Read records carry the observed-value field.
//
//	tid,-1,start | tid,slot,write | tid,slot,value,read | tid,-1,commit | tid,-1,rollback
func (r Record) MarshalCSV() []string {
	fields := []string{
		strconv.FormatUint(r.TID, 10),
		strconv.Itoa(r.Slot),
	}
	if r.Kind == KindRead {
		fields = append(fields, strconv.Itoa(r.Value))
	}
	return append(fields, r.Kind.String())
}

// UnmarshalCSV decodes one artifact row back into a record.
func UnmarshalCSV(fields []string) (Record, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return Record{}, fmt.Errorf("%w: %d fields", ErrMalformedRecord, len(fields))
	}

	tid, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: tid %q", ErrMalformedRecord, fields[0])
	}

	slot, err := strconv.Atoi(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("%w: slot %q", ErrMalformedRecord, fields[1])
	}

	kind, err := ParseKind(fields[len(fields)-1])
	if err != nil {
		return Record{}, err
	}

	rec := Record{TID: tid, Slot: slot, Kind: kind}

	if kind == KindRead {
		if len(fields) != 4 {
			return Record{}, fmt.Errorf("%w: read record without observed value", ErrMalformedRecord)
		}
		value, err := strconv.Atoi(fields[2])
		if err != nil {
			return Record{}, fmt.Errorf("%w: value %q", ErrMalformedRecord, fields[2])
		}
		rec.Value = value
	} else if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: unexpected observed value for %s record", ErrMalformedRecord, kind)
	}

	return rec, nil
}
