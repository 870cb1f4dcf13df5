package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/cfg"
	"github.com/lockstepdb/lockstep/wal"
)

// SinkFactory creates a sink from its configuration
type SinkFactory func(config cfg.SinkConfiguration) (Sink, error)

var (
	sinkFactoriesMu sync.Mutex
	sinkFactories   = make(map[string]SinkFactory)
)

// RegisterSink registers a sink factory for a sink type. Called from sink
// package init functions.
func RegisterSink(sinkType string, factory SinkFactory) {
	sinkFactoriesMu.Lock()
	defer sinkFactoriesMu.Unlock()
	sinkFactories[sinkType] = factory
}

func newSink(config cfg.SinkConfiguration) (Sink, error) {
	sinkFactoriesMu.Lock()
	factory, ok := sinkFactories[config.Type]
	sinkFactoriesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return factory(config)
}

// Registry manages the lifecycle of all publisher workers. It implements
// the scheduler's record publisher hook: every appended record fans out to
// every worker.
type Registry struct {
	workers []*Worker
	seq     atomic.Uint64
	runID   uint64
}

// NewRegistry creates workers for each configured sink.
func NewRegistry(runID uint64, sinks []cfg.SinkConfiguration) (*Registry, error) {
	registry := &Registry{runID: runID}

	for _, sinkCfg := range sinks {
		worker, err := newWorkerFor(sinkCfg)
		if err != nil {
			for _, w := range registry.workers {
				w.config.Sink.Close()
			}
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		registry.workers = append(registry.workers, worker)
	}

	log.Info().Int("workers", len(registry.workers)).Msg("Publisher registry initialized")
	return registry, nil
}

func newWorkerFor(sinkCfg cfg.SinkConfiguration) (*Worker, error) {
	filter, err := NewGlobFilter(sinkCfg.Operations)
	if err != nil {
		return nil, err
	}

	sink, err := newSink(sinkCfg)
	if err != nil {
		return nil, err
	}

	topic := sinkCfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	worker, err := NewWorker(WorkerConfig{
		Name:   sinkCfg.Name,
		Topic:  topic,
		Sink:   sink,
		Filter: filter,
	})
	if err != nil {
		sink.Close()
		return nil, err
	}
	return worker, nil
}

// Start starts all workers.
func (r *Registry) Start() {
	for _, worker := range r.workers {
		worker.Start()
	}
}

// PublishRecord fans one appended record out to every worker.
func (r *Registry) PublishRecord(rec wal.Record) {
	event := Event{
		Seq:   r.seq.Add(1),
		RunID: r.runID,
		TID:   rec.TID,
		Slot:  rec.Slot,
		Value: rec.Value,
		Kind:  rec.Kind.String(),
	}
	for _, worker := range r.workers {
		worker.Enqueue(event)
	}
}

// Stop drains and stops all workers.
func (r *Registry) Stop() {
	for _, worker := range r.workers {
		worker.Stop()
	}
}
