package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/admin"
	"github.com/lockstepdb/lockstep/cfg"
	"github.com/lockstepdb/lockstep/publisher"
	_ "github.com/lockstepdb/lockstep/publisher/sink"
	"github.com/lockstepdb/lockstep/sim"
	"github.com/lockstepdb/lockstep/storage"
	"github.com/lockstepdb/lockstep/telemetry"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("run_id", cfg.Config.RunID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Lockstep - Transactional Concurrency Simulator")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	// Open the artifact store for the database snapshot and recovery log
	log.Info().
		Str("backend", string(cfg.Config.Storage.Backend)).
		Str("data_dir", cfg.Config.DataDir).
		Msg("Opening artifact store")
	artifacts, err := storage.Open(cfg.Config.Storage, cfg.Config.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
		return
	}
	defer artifacts.Close()

	stats, err := sim.NewStats(cfg.Config.Admin.RecentCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize stats collector")
		return
	}

	// Start the publisher registry when sinks are configured
	var registry *publisher.Registry
	if cfg.Config.Publish.Enabled {
		registry, err = publisher.NewRegistry(cfg.Config.RunID, cfg.Config.Publish.Sinks)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize publisher")
			return
		}
		registry.Start()
		defer registry.Stop()
	}

	scheduler := sim.NewScheduler(schedulerParams(), artifacts, stats, recordPublisher(registry))

	// Restore persisted state and replay the recovery log before any new
	// activity
	if err := scheduler.Recover(); err != nil {
		log.Fatal().Err(err).Msg("Recovery failed")
		return
	}

	if cfg.Config.Admin.Enabled {
		adminServer := admin.NewServer(scheduler, stats)
		if err := adminServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
			return
		}
		defer adminServer.Stop()
	}

	if err := scheduler.Run(); err != nil {
		log.Fatal().Err(err).Msg("Simulation aborted")
	}
}

// schedulerParams maps the validated configuration onto scheduler
// parameters. A zero seed derives a stable one from the run ID.
func schedulerParams() sim.Params {
	simulation := cfg.Config.Simulation

	seed := simulation.Seed
	if seed == 0 {
		seed = int64(cfg.Config.RunID)
	}

	return sim.Params{
		Cycles:        simulation.Cycles,
		TransSize:     simulation.TransSize,
		Slots:         simulation.Slots,
		StartProb:     simulation.StartProb,
		WriteProb:     simulation.WriteProb,
		RollbackProb:  simulation.RollbackProb,
		BlockTimeout:  simulation.BlockTimeout,
		FlushInterval: cfg.Config.Storage.FlushIntervalCycles,
		Seed:          seed,
	}
}

// recordPublisher avoids handing the scheduler a non-nil interface holding
// a nil registry.
func recordPublisher(registry *publisher.Registry) sim.RecordPublisher {
	if registry == nil {
		return nil
	}
	return registry
}
