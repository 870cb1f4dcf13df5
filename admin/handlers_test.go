package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lockstepdb/lockstep/sim"
	"github.com/lockstepdb/lockstep/wal"
)

type memArtifacts struct {
	state []int
	log   []wal.Record
}

func (m *memArtifacts) SaveLog(records []wal.Record) error {
	m.log = append([]wal.Record(nil), records...)
	return nil
}

func (m *memArtifacts) LoadLog() ([]wal.Record, error) {
	return append([]wal.Record(nil), m.log...), nil
}

func (m *memArtifacts) SaveState(values []int) error {
	m.state = append([]int(nil), values...)
	return nil
}

func (m *memArtifacts) LoadState(slots int) ([]int, error) {
	if m.state == nil {
		return make([]int, slots), nil
	}
	return append([]int(nil), m.state...), nil
}

func (m *memArtifacts) Close() error { return nil }

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	stats, err := sim.NewStats(16)
	require.NoError(t, err)

	scheduler := sim.NewScheduler(sim.Params{
		Cycles:        20,
		TransSize:     2,
		Slots:         8,
		StartProb:     1.0,
		WriteProb:     1.0,
		RollbackProb:  0,
		BlockTimeout:  2,
		FlushInterval: 25,
		Seed:          5,
	}, &memArtifacts{}, stats, nil)
	require.NoError(t, scheduler.Recover())
	require.NoError(t, scheduler.Run())

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(scheduler, stats))
	return mux
}

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestHandlers_Stats(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/stats")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decodeData(t, recorder)
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok)
	require.Greater(t, data["transactions_started"], float64(0))
}

func TestHandlers_State(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/state")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decodeData(t, recorder)
	data, ok := response["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 8)
}

func TestHandlers_LogTail(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/log")
	require.Equal(t, http.StatusOK, recorder.Code)
	response := decodeData(t, recorder)
	require.NotEmpty(t, response["data"])

	recorder = get(t, mux, "/admin/log?limit=2")
	require.Equal(t, http.StatusOK, recorder.Code)
	response = decodeData(t, recorder)
	data, ok := response["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)
	require.Equal(t, true, response["has_more"])
}

func TestHandlers_LogInvalidLimit(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/log?limit=banana")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandlers_RecentTransactions(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/transactions/recent")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decodeData(t, recorder)
	require.NotEmpty(t, response["data"])
}

func TestHandlers_Locks(t *testing.T) {
	mux := newTestMux(t)

	recorder := get(t, mux, "/admin/locks")
	require.Equal(t, http.StatusOK, recorder.Code)
}
