package publisher

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/encoding"
)

const (
	// DefaultBufferSize is the per-worker event buffer depth.
	DefaultBufferSize = 1024
	// DefaultTopic is used when a sink configuration names no topic.
	DefaultTopic = "lockstep.records"
)

// WorkerConfig configures one publisher worker
type WorkerConfig struct {
	Name       string // Sink name, for logging
	Topic      string // Destination topic or subject
	Sink       Sink   // Destination sink
	Filter     Filter // Event filter
	BufferSize int    // Event buffer depth
}

// Worker drains buffered events into one sink
type Worker struct {
	config  WorkerConfig
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewWorker creates a new publisher worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}

	return &Worker{
		config: config,
		events: make(chan Event, config.BufferSize),
		done:   make(chan struct{}),
	}, nil
}

// Start begins draining events in the background.
func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)

	for event := range w.events {
		if !w.config.Filter.Match(event.Kind) {
			continue
		}

		payload, err := encoding.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("sink", w.config.Name).Msg("Failed to encode event")
			continue
		}

		key := strconv.FormatUint(event.TID, 10)
		if err := w.config.Sink.Publish(w.config.Topic, key, payload); err != nil {
			log.Warn().
				Err(err).
				Str("sink", w.config.Name).
				Uint64("seq", event.Seq).
				Msg("Publish failed, event dropped")
		}
	}
}

// Enqueue hands an event to the worker. The scheduler must never block on
// a slow sink, so a full buffer drops the event.
func (w *Worker) Enqueue(event Event) {
	select {
	case w.events <- event:
	default:
		if w.dropped.Add(1) == 1 {
			log.Warn().Str("sink", w.config.Name).Msg("Event buffer full, dropping events")
		}
	}
}

// Dropped returns how many events were dropped due to a full buffer.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Stop drains remaining events, waits for the worker to finish and closes
// the sink.
func (w *Worker) Stop() {
	close(w.events)
	<-w.done

	if dropped := w.dropped.Load(); dropped > 0 {
		log.Warn().
			Str("sink", w.config.Name).
			Uint64("dropped", dropped).
			Msg("Events were dropped during the run")
	}
	if err := w.config.Sink.Close(); err != nil {
		log.Warn().Err(err).Str("sink", w.config.Name).Msg("Sink close failed")
	}
}
