package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/wal"
)

const (
	stateFileName   = "database.csv"
	logFileName     = "log.csv"
	checksumSuffix  = ".xxh64"
	archiveDirName  = "archives"
	archiveFilePerm = 0640
)

// FileStoreOptions configures the CSV artifact store.
type FileStoreOptions struct {
	VerifyChecksums bool // Write and verify xxh64 sidecars next to each artifact
	ArchiveFlushes  bool // Keep a zstd-compressed copy of every flushed log
}

// FileStore persists artifacts as CSV files in the data directory, the
// format the reference tooling reads. Each artifact optionally carries an
// xxh64 sidecar that is verified on load.
type FileStore struct {
	dataDir  string
	opts     FileStoreOptions
	archives int
}

// NewFileStore creates a file-backed artifact store rooted at dataDir.
func NewFileStore(dataDir string, opts FileStoreOptions) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{dataDir: dataDir, opts: opts}

	if opts.ArchiveFlushes {
		archiveDir := filepath.Join(dataDir, archiveDirName)
		if err := os.MkdirAll(archiveDir, 0750); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
		// Continue numbering after any archives from a previous run
		matches, err := filepath.Glob(filepath.Join(archiveDir, "log-*.csv.zst"))
		if err != nil {
			return nil, fmt.Errorf("scan archive dir: %w", err)
		}
		s.archives = len(matches)
	}

	return s, nil
}

// SaveState persists the slot values as one CSV record.
func (s *FileStore) SaveState(values []int) error {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.Itoa(v)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return s.writeArtifact(stateFileName, buf.Bytes())
}

// LoadState restores the persisted slot values. A missing snapshot yields
// an all-zero record of the requested size.
func (s *FileStore) LoadState(slots int) ([]int, error) {
	data, err := s.readArtifact(stateFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return make([]int, slots), nil
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("decode state: expected 1 record, got %d", len(rows))
	}
	if len(rows[0]) != slots {
		return nil, fmt.Errorf("decode state: snapshot has %d slots, store has %d", len(rows[0]), slots)
	}

	values := make([]int, len(rows[0]))
	for i, field := range rows[0] {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("decode state: slot %d value %q: %w", i, field, err)
		}
		values[i] = v
	}
	return values, nil
}

// SaveLog persists the full record sequence, replacing the prior snapshot.
func (s *FileStore) SaveLog(records []wal.Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range records {
		if err := w.Write(rec.MarshalCSV()); err != nil {
			return fmt.Errorf("encode log: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode log: %w", err)
	}

	if err := s.writeArtifact(logFileName, buf.Bytes()); err != nil {
		return err
	}

	if s.opts.ArchiveFlushes {
		if err := s.archiveLog(buf.Bytes()); err != nil {
			// Forensic copies are best-effort; the primary artifact is safe
			log.Warn().Err(err).Msg("Failed to archive flushed log")
		}
	}

	return nil
}

// LoadLog restores the persisted record sequence, or an empty one when no
// log artifact exists.
func (s *FileStore) LoadLog() ([]wal.Record, error) {
	data, err := s.readArtifact(logFileName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Rows are variable arity

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}

	records := make([]wal.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := wal.UnmarshalCSV(row)
		if err != nil {
			return nil, fmt.Errorf("decode log row %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// writeArtifact writes an artifact file and its checksum sidecar.
func (s *FileStore) writeArtifact(name string, data []byte) error {
	path := filepath.Join(s.dataDir, name)
	if err := os.WriteFile(path, data, archiveFilePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	if s.opts.VerifyChecksums {
		sum := strconv.FormatUint(xxhash.Sum64(data), 16)
		if err := os.WriteFile(path+checksumSuffix, []byte(sum), archiveFilePerm); err != nil {
			return fmt.Errorf("write %s checksum: %w", name, err)
		}
	}

	return nil
}

// readArtifact reads an artifact file, verifying its sidecar when present.
// Returns nil data when the artifact does not exist.
func (s *FileStore) readArtifact(name string) ([]byte, error) {
	path := filepath.Join(s.dataDir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	if s.opts.VerifyChecksums {
		want, err := os.ReadFile(path + checksumSuffix)
		if err == nil {
			got := strconv.FormatUint(xxhash.Sum64(data), 16)
			if got != string(want) {
				return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s checksum: %w", name, err)
		}
	}

	return data, nil
}

// archiveLog writes a compressed copy of the flushed log for forensics.
func (s *FileStore) archiveLog(data []byte) error {
	s.archives++
	path := filepath.Join(s.dataDir, archiveDirName, fmt.Sprintf("log-%06d.csv.zst", s.archives))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, archiveFilePerm)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}

	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
