package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordConstructors(t *testing.T) {
	t.Parallel()

	require.Equal(t, Record{TID: 1, Slot: TxnSentinelSlot, Kind: KindStart}, Start(1))
	require.Equal(t, Record{TID: 1, Slot: 5, Value: 1, Kind: KindRead}, Read(1, 5, 1))
	require.Equal(t, Record{TID: 1, Slot: 5, Kind: KindWrite}, Write(1, 5))
	require.Equal(t, Record{TID: 1, Slot: TxnSentinelSlot, Kind: KindCommit}, Commit(1))
	require.Equal(t, Record{TID: 1, Slot: TxnSentinelSlot, Kind: KindRollback}, Rollback(1))
}

func TestKindRoundTrip(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindStart, KindRead, KindWrite, KindCommit, KindRollback} {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}

	_, err := ParseKind("upsert")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestMarshalCSV_VariableArity(t *testing.T) {
	t.Parallel()

	// Transaction-scoped records carry the -1 sentinel and three fields
	require.Equal(t, []string{"7", "-1", "start"}, Start(7).MarshalCSV())
	require.Equal(t, []string{"7", "-1", "commit"}, Commit(7).MarshalCSV())
	require.Equal(t, []string{"7", "-1", "rollback"}, Rollback(7).MarshalCSV())

	// Writes carry the slot, reads additionally the observed value
	require.Equal(t, []string{"7", "12", "write"}, Write(7, 12).MarshalCSV())
	require.Equal(t, []string{"7", "12", "0", "read"}, Read(7, 12, 0).MarshalCSV())
}

func TestUnmarshalCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []string
		want   Record
	}{
		{"start", []string{"3", "-1", "start"}, Start(3)},
		{"write", []string{"3", "9", "write"}, Write(3, 9)},
		{"read", []string{"3", "9", "1", "read"}, Read(3, 9, 1)},
		{"commit", []string{"3", "-1", "commit"}, Commit(3)},
		{"rollback", []string{"3", "-1", "rollback"}, Rollback(3)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec, err := UnmarshalCSV(tc.fields)
			require.NoError(t, err)
			require.Equal(t, tc.want, rec)
		})
	}
}

func TestUnmarshalCSV_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []string
	}{
		{"too few fields", []string{"1", "start"}},
		{"too many fields", []string{"1", "2", "3", "4", "read"}},
		{"bad tid", []string{"x", "-1", "start"}},
		{"bad slot", []string{"1", "x", "write"}},
		{"bad value", []string{"1", "2", "x", "read"}},
		{"read without value", []string{"1", "2", "read"}},
		{"write with value", []string{"1", "2", "1", "write"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := UnmarshalCSV(tc.fields)
			require.ErrorIs(t, err, ErrMalformedRecord)
		})
	}

	_, err := UnmarshalCSV([]string{"1", "-1", "upsert"})
	require.ErrorIs(t, err, ErrUnknownKind)
}
