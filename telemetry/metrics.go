package telemetry

// CycleDurationBuckets for the single-threaded round loop (sub-millisecond
// rounds are the norm).
var CycleDurationBuckets = []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1}

// Scheduler metrics
var (
	// CyclesTotal counts simulation rounds executed
	CyclesTotal Counter = NoopStat{}

	// TxnTotal counts transactions by outcome (started, committed, rolled_back)
	TxnTotal CounterVec = noopCounterVec{}

	// OperationsTotal counts operations by kind (read, write) and result (ok, conflict)
	OperationsTotal CounterVec = noopCounterVec{}

	// ActiveTransactions tracks the current active-set size
	ActiveTransactions Gauge = NoopStat{}

	// BlockedTransactions tracks how many active transactions are blocked
	BlockedTransactions Gauge = NoopStat{}

	// CycleDurationSeconds measures round duration
	CycleDurationSeconds Histogram = NoopStat{}
)

// Recovery metrics
var (
	// LogFlushesTotal counts recovery log snapshots persisted
	LogFlushesTotal Counter = NoopStat{}

	// LogRecordsTotal counts records appended by kind
	LogRecordsTotal CounterVec = noopCounterVec{}

	// ReplayedRecordsTotal counts slot mutations applied during startup replay
	ReplayedRecordsTotal Counter = NoopStat{}
)

func initializeMetrics() {
	CyclesTotal = NewCounter(
		"cycles_total",
		"Total simulation cycles executed",
	)
	TxnTotal = NewCounterVec(
		"transactions_total",
		"Transactions by outcome",
		[]string{"outcome"},
	)
	OperationsTotal = NewCounterVec(
		"operations_total",
		"Operations by kind and result",
		[]string{"kind", "result"},
	)
	ActiveTransactions = NewGauge(
		"active_transactions",
		"Current number of active transactions",
	)
	BlockedTransactions = NewGauge(
		"blocked_transactions",
		"Current number of blocked transactions",
	)
	CycleDurationSeconds = NewHistogramWithBuckets(
		"cycle_duration_seconds",
		"Simulation cycle duration in seconds",
		CycleDurationBuckets,
	)

	LogFlushesTotal = NewCounter(
		"log_flushes_total",
		"Total recovery log snapshots persisted",
	)
	LogRecordsTotal = NewCounterVec(
		"log_records_total",
		"Log records appended by kind",
		[]string{"kind"},
	)
	ReplayedRecordsTotal = NewCounter(
		"replayed_records_total",
		"Slot mutations applied during startup replay",
	)
}
