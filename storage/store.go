// Package storage persists the two simulation artifacts: the database
// snapshot (one record of slot values) and the recovery log (the full
// record sequence). Both are overwritten wholesale on every save.
package storage

import (
	"errors"
	"fmt"

	"github.com/lockstepdb/lockstep/cfg"
	"github.com/lockstepdb/lockstep/wal"
)

// ErrChecksumMismatch indicates an artifact failed sidecar verification.
var ErrChecksumMismatch = errors.New("artifact checksum mismatch")

// ArtifactStore stores and restores both artifacts. An absent artifact is
// the defined fresh-start condition, never an error: LoadState returns an
// all-zero record and LoadLog an empty sequence.
type ArtifactStore interface {
	wal.Persister

	// SaveState persists the slot values in slot order.
	SaveState(values []int) error
	// LoadState restores the persisted slot values, or a zeroed record of
	// the given size when no snapshot exists.
	LoadState(slots int) ([]int, error)

	Close() error
}

// Open creates the artifact store selected by the storage configuration.
func Open(config cfg.StorageConfiguration, dataDir string) (ArtifactStore, error) {
	switch config.Backend {
	case cfg.BackendFile:
		return NewFileStore(dataDir, FileStoreOptions{
			VerifyChecksums: config.VerifyChecksums,
			ArchiveFlushes:  config.ArchiveFlushes,
		})
	case cfg.BackendPebble:
		return NewPebbleStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", config.Backend)
	}
}
