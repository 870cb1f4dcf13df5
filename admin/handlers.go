// Package admin exposes a read-only HTTP inspection API over a running
// simulation: counters, lock table contents, the recovery log, slot values
// and recently finished transactions.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/cfg"
	"github.com/lockstepdb/lockstep/sim"
)

// Handlers serves the admin API endpoints.
type Handlers struct {
	scheduler *sim.Scheduler
	stats     *sim.Stats
}

// NewHandlers creates a Handlers instance over a scheduler and its stats
// collector.
func NewHandlers(scheduler *sim.Scheduler, stats *sim.Stats) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		stats:     stats,
	}
}

// handleStats returns the run counters.
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.stats.Snapshot(), false, "")
}

// handleLocks returns the current lock table contents.
func (h *Handlers) handleLocks(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.scheduler.LockSnapshot(), false, "")
}

// handleState returns the current slot values in slot order.
func (h *Handlers) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.scheduler.StoreValues(), false, "")
}

// handleLog returns the tail of the recovery log, newest records last.
func (h *Handlers) handleLog(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	records := h.scheduler.LogRecords()
	hasMore := len(records) > limit
	if hasMore {
		records = records[len(records)-limit:]
	}
	writeJSONResponse(w, records, hasMore, "")
}

// handleRecentTransactions returns recently finished transactions, most
// recent last.
func (h *Handlers) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.stats.Recent(), false, "")
}

// handleConfig returns the effective simulation parameters.
func (h *Handlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"run_id":     cfg.Config.RunID,
		"data_dir":   cfg.Config.DataDir,
		"simulation": cfg.Config.Simulation,
		"storage":    cfg.Config.Storage,
	}
	writeJSONResponse(w, response, false, "")
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}, hasMore bool, lastKey string) {
	response := map[string]interface{}{
		"data": data,
	}

	if hasMore || lastKey != "" {
		response["has_more"] = hasMore
		if lastKey != "" {
			response["last_key"] = lastKey
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses the limit query parameter with a default.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return 0, errInvalidLimit
	}
	return limit, nil
}
