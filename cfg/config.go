package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// StorageBackend selects where the database snapshot and recovery log live
type StorageBackend string

const (
	BackendFile   StorageBackend = "file"   // CSV artifacts on the local file system
	BackendPebble StorageBackend = "pebble" // PebbleDB-backed artifact store
)

// SimulationConfiguration holds the workload parameters for one run
type SimulationConfiguration struct {
	Cycles       int     `toml:"cycles"`        // Number of rounds to run
	TransSize    int     `toml:"trans_size"`    // Active-set size that triggers commit
	Slots        int     `toml:"slots"`         // Number of database slots
	StartProb    float64 `toml:"start_prob"`    // Per-cycle admission probability
	WriteProb    float64 `toml:"write_prob"`    // Per-operation write probability
	RollbackProb float64 `toml:"rollback_prob"` // Per-step rollback probability
	BlockTimeout int     `toml:"timeout"`       // Cycles a blocked transaction waits before retry
	Seed         int64   `toml:"seed"`          // RNG seed; 0 means derive from run ID
}

// StorageConfiguration controls artifact persistence behavior
type StorageConfiguration struct {
	Backend             StorageBackend `toml:"backend"`
	FlushIntervalCycles int            `toml:"flush_interval_cycles"` // Log snapshot cadence
	VerifyChecksums     bool           `toml:"verify_checksums"`      // xxh64 sidecar verification (file backend)
	ArchiveFlushes      bool           `toml:"archive_flushes"`       // Keep zstd copies of flushed logs
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// AdminConfiguration for the HTTP inspection API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	Address     string `toml:"address"`
	Port        int    `toml:"port"`
	RecentCache int    `toml:"recent_cache"` // Finished transactions kept for /transactions/recent
}

// SinkConfiguration describes one event sink for the publisher
type SinkConfiguration struct {
	Name         string   `toml:"name"`
	Type         string   `toml:"type"` // "nats", "kafka" or "mock"
	NatsURL      string   `toml:"nats_url"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	Topic        string   `toml:"topic"`
	Operations   []string `toml:"operations"` // Glob patterns over record kinds; empty matches all
}

// PublishConfiguration controls streaming of log records to external sinks
type PublishConfiguration struct {
	Enabled bool                `toml:"enabled"`
	Sinks   []SinkConfiguration `toml:"sinks"`
}

// Configuration is the main configuration structure
type Configuration struct {
	RunID   uint64 `toml:"run_id"`
	DataDir string `toml:"data_dir"`

	Simulation SimulationConfiguration `toml:"simulation"`
	Storage    StorageConfiguration    `toml:"storage"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
	Publish    PublishConfiguration    `toml:"publish"`
}

// Command line flags
var (
	ConfigPathFlag   = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag      = flag.String("data-dir", "", "Data directory (overrides config)")
	CyclesFlag       = flag.Int("cycles", 0, "Number of simulation cycles (overrides config)")
	TransSizeFlag    = flag.Int("trans-size", 0, "Transaction size threshold (overrides config)")
	StartProbFlag    = flag.Float64("start-prob", -1, "Transaction admission probability (overrides config)")
	WriteProbFlag    = flag.Float64("write-prob", -1, "Write operation probability (overrides config)")
	RollbackProbFlag = flag.Float64("rollback-prob", -1, "Rollback probability (overrides config)")
	TimeoutFlag      = flag.Int("timeout", 0, "Block timeout in cycles (overrides config)")
	SeedFlag         = flag.Int64("seed", 0, "RNG seed (overrides config)")
)

// Default configuration
var Config = &Configuration{
	RunID:   0, // Auto-generate
	DataDir: "./lockstep-data",

	Simulation: SimulationConfiguration{
		Cycles:       100,
		TransSize:    4,
		Slots:        32,
		StartProb:    0.5,
		WriteProb:    0.7,
		RollbackProb: 0.1,
		BlockTimeout: 3,
		Seed:         0,
	},

	Storage: StorageConfiguration{
		Backend:             BackendFile,
		FlushIntervalCycles: 25,
		VerifyChecksums:     true,
		ArchiveFlushes:      false,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: false,
		Address: "0.0.0.0",
		Port:    9090,
	},

	Admin: AdminConfiguration{
		Enabled:     false,
		Address:     "127.0.0.1",
		Port:        8780,
		RecentCache: 128,
	},

	Publish: PublishConfiguration{
		Enabled: false,
		Sinks:   []SinkConfiguration{},
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *CyclesFlag != 0 {
		Config.Simulation.Cycles = *CyclesFlag
	}
	if *TransSizeFlag != 0 {
		Config.Simulation.TransSize = *TransSizeFlag
	}
	if *StartProbFlag >= 0 {
		Config.Simulation.StartProb = *StartProbFlag
	}
	if *WriteProbFlag >= 0 {
		Config.Simulation.WriteProb = *WriteProbFlag
	}
	if *RollbackProbFlag >= 0 {
		Config.Simulation.RollbackProb = *RollbackProbFlag
	}
	if *TimeoutFlag != 0 {
		Config.Simulation.BlockTimeout = *TimeoutFlag
	}
	if *SeedFlag != 0 {
		Config.Simulation.Seed = *SeedFlag
	}

	// Auto-generate run ID if not set
	if Config.RunID == 0 {
		var err error
		Config.RunID, err = generateRunID()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}
		log.Info().Uint64("run_id", Config.RunID).Msg("Auto-generated run ID")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateRunID creates a stable run ID based on machine ID
func generateRunID() (uint64, error) {
	id, err := machineid.ProtectedID("lockstep")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	sim := &Config.Simulation

	if sim.Cycles < 0 {
		return fmt.Errorf("cycles must be >= 0")
	}

	if sim.TransSize < 1 {
		return fmt.Errorf("transaction size threshold must be >= 1")
	}

	if sim.Slots < 1 {
		return fmt.Errorf("slot count must be >= 1")
	}

	if sim.BlockTimeout < 0 {
		return fmt.Errorf("block timeout must be >= 0 cycles")
	}

	for name, p := range map[string]float64{
		"start_prob":    sim.StartProb,
		"write_prob":    sim.WriteProb,
		"rollback_prob": sim.RollbackProb,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}

	switch Config.Storage.Backend {
	case BackendFile, BackendPebble:
	default:
		return fmt.Errorf("invalid storage backend: %s", Config.Storage.Backend)
	}

	if Config.Storage.FlushIntervalCycles < 1 {
		return fmt.Errorf("flush interval must be >= 1 cycle")
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid Prometheus port: %d", Config.Prometheus.Port)
	}

	if Config.Admin.Enabled {
		if Config.Admin.Port < 1 || Config.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
		}
		if Config.Admin.RecentCache < 1 {
			return fmt.Errorf("admin recent cache size must be >= 1")
		}
	}

	if Config.Publish.Enabled {
		for _, sink := range Config.Publish.Sinks {
			switch sink.Type {
			case "nats", "kafka", "mock":
			default:
				return fmt.Errorf("invalid sink type for %q: %s", sink.Name, sink.Type)
			}
		}
	}

	return nil
}

// SnapshotPath returns the database snapshot artifact path (file backend)
func SnapshotPath() string {
	return filepath.Join(Config.DataDir, "database.csv")
}

// LogPath returns the recovery log artifact path (file backend)
func LogPath() string {
	return filepath.Join(Config.DataDir, "log.csv")
}
