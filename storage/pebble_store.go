package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/encoding"
	"github.com/lockstepdb/lockstep/wal"
)

// Key layout. Artifacts are whole-value snapshots, matching the overwrite
// semantics of the file backend.
const (
	pebbleKeyState = "/artifact/state"
	pebbleKeyLog   = "/artifact/log"
)

// PebbleStore persists artifacts as msgpack values in a PebbleDB instance
// under the data directory. Durability comes from Pebble's own WAL; each
// save is a synced overwrite of the artifact's key.
type PebbleStore struct {
	db   *pebble.DB
	path string
}

// NewPebbleStore opens (or creates) the artifact store at
// {dataDir}/artifacts.pebble.
func NewPebbleStore(dataDir string) (*PebbleStore, error) {
	path := filepath.Join(dataDir, "artifacts.pebble")

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble artifact store: %w", err)
	}

	log.Debug().Str("path", path).Msg("Opened pebble artifact store")
	return &PebbleStore{db: db, path: path}, nil
}

// SaveState persists the slot values.
func (s *PebbleStore) SaveState(values []int) error {
	data, err := encoding.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.db.Set([]byte(pebbleKeyState), data, pebble.Sync); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadState restores the persisted slot values, or an all-zero record of
// the requested size when none have been saved.
func (s *PebbleStore) LoadState(slots int) ([]int, error) {
	data, err := s.get(pebbleKeyState)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return make([]int, slots), nil
	}

	var values []int
	if err := encoding.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if len(values) != slots {
		return nil, fmt.Errorf("decode state: snapshot has %d slots, store has %d", len(values), slots)
	}
	return values, nil
}

// SaveLog persists the full record sequence, replacing the prior snapshot.
func (s *PebbleStore) SaveLog(records []wal.Record) error {
	data, err := encoding.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	if err := s.db.Set([]byte(pebbleKeyLog), data, pebble.Sync); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// LoadLog restores the persisted record sequence, or an empty one.
func (s *PebbleStore) LoadLog() ([]wal.Record, error) {
	data, err := s.get(pebbleKeyLog)
	if err != nil || data == nil {
		return nil, err
	}

	var records []wal.Record
	if err := encoding.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return records, nil
}

// Close closes the underlying Pebble instance.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// get reads a key, returning nil data when the key does not exist.
func (s *PebbleStore) get(key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}
