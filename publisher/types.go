// Package publisher streams appended log records to external sinks (NATS,
// Kafka) without ever blocking the scheduler: each sink gets a buffered
// worker, and events are dropped when a sink cannot keep up.
package publisher

// Event is one log record as published to external sinks.
type Event struct {
	Seq   uint64 `msgpack:"seq"` // Monotonic per-run sequence
	RunID uint64 `msgpack:"run"` // Originating run
	TID   uint64 `msgpack:"tid"` // Transaction ID
	Slot  int    `msgpack:"slot"`
	Value int    `msgpack:"val"` // Observed value, reads only
	Kind  string `msgpack:"op"`  // start, read, write, commit, rollback
}

// Sink represents a destination for published events (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends an event to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether an event should be published
type Filter interface {
	// Match returns true if the event should be published
	Match(kind string) bool
}
