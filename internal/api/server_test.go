package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medtab/medtab/internal/alarm"
	"github.com/medtab/medtab/internal/config"
	"github.com/medtab/medtab/internal/notify"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

func setupServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{})
	require.NoError(t, err)

	badgerDB, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { badgerDB.Close() })

	st, err := store.Open(db, badgerDB)
	require.NoError(t, err)

	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)

	logger := zap.NewNop()
	builder := schedule.NewBuilder(st, logger)
	notifier := notify.NewLogNotifier(logger)
	scheduler := notify.NewScheduler(st, builder, alarm.NewService(st, logger, nil, nil), notifier, cfg, logger)

	srv := New(cfg, st, builder, scheduler, logger)
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func pinDay(s *store.Store, date, clock string) {
	fixed, _ := time.Parse("2006-01-02 15:04", date+" "+clock)
	s.SetNow(func() time.Time { return fixed })
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	resp, body := doJSON(t, srv, "GET", "/api/health", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}

func TestMedicationLifecycle(t *testing.T) {
	srv, st := setupServer(t)
	pinDay(st, "2025-10-01", "07:00")

	resp, body := doJSON(t, srv, "POST", "/api/medications", fiberMap{"name": "Aspirin"})
	require.Equal(t, 201, resp.StatusCode)
	var med store.Medication
	require.NoError(t, json.Unmarshal(body, &med))
	require.NotEmpty(t, med.ID)

	resp, _ = doJSON(t, srv, "PUT", "/api/medications/"+med.ID+"/config", fiberMap{
		"kind":       "DAILY",
		"start_date": "2025-10-01",
		"dose":       100,
		"dose_unit":  "mg",
	})
	require.Equal(t, 204, resp.StatusCode)

	resp, _ = doJSON(t, srv, "PUT", "/api/medications/"+med.ID+"/times", fiberMap{
		"times": []fiberMap{{"clock_time": "08:00"}, {"clock_time": "20:00"}},
	})
	require.Equal(t, 204, resp.StatusCode)

	resp, body = doJSON(t, srv, "GET", "/api/medications/"+med.ID, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "08:00")
	assert.Contains(t, string(body), "20:00")

	resp, body = doJSON(t, srv, "GET", "/api/schedule/2025-10-10", nil)
	require.Equal(t, 200, resp.StatusCode)
	var snap schedule.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 2, snap.Summary.Unchecked)

	resp, _ = doJSON(t, srv, "DELETE", "/api/medications/"+med.ID, nil)
	require.Equal(t, 204, resp.StatusCode)

	resp, body = doJSON(t, srv, "GET", "/api/schedule/2025-10-10", nil)
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Empty(t, snap.Items)
}

func TestMedicationNotFoundResponses(t *testing.T) {
	srv, _ := setupServer(t)

	resp, body := doJSON(t, srv, "PUT", "/api/medications/nope", fiberMap{"name": "Tylenol"})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(body), "MED_001")

	resp, body = doJSON(t, srv, "DELETE", "/api/medications/nope", nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(body), "MED_001")
}

func TestIntakeEndpoint(t *testing.T) {
	srv, st := setupServer(t)
	pinDay(st, "2025-10-01", "08:30")

	med, err := st.CreateMedication("Aspirin")
	require.NoError(t, err)
	require.NoError(t, st.ApplyConfigChange(med.ID, store.ConfigChange{
		Kind: "DAILY", StartDate: "2025-10-01", Dose: 100, DoseUnit: "mg",
	}))
	require.NoError(t, st.ApplyTimeSetChange(med.ID, []store.TimeSlot{{ClockTime: "08:00"}}))

	taken := true
	resp, body := doJSON(t, srv, "POST", "/api/intakes", fiberMap{
		"medication_id":   med.ID,
		"sequence_number": 1,
		"date":            "2025-10-01",
		"taken":           taken,
	})
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "08:30")

	resp, _ = doJSON(t, srv, "POST", "/api/intakes", fiberMap{
		"medication_id": med.ID,
		"date":          "2025-10-01",
	})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestNotesEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	resp, _ := doJSON(t, srv, "PUT", "/api/notes/2025-10-01", fiberMap{"text": "felt dizzy"})
	require.Equal(t, 204, resp.StatusCode)

	resp, body := doJSON(t, srv, "GET", "/api/notes/2025-10-01", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "felt dizzy")

	resp, _ = doJSON(t, srv, "DELETE", "/api/notes/2025-10-01", nil)
	require.Equal(t, 204, resp.StatusCode)

	resp, _ = doJSON(t, srv, "GET", "/api/notes/2025-10-01", nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	resp, body := doJSON(t, srv, "GET", "/api/settings", nil)
	require.Equal(t, 200, resp.StatusCode)
	var settings config.NotificationsConfig
	require.NoError(t, json.Unmarshal(body, &settings))
	assert.True(t, settings.Enabled)

	settings.ReminderDelayMinutes = 30
	resp, body = doJSON(t, srv, "PUT", "/api/settings", settings)
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &settings))
	assert.Equal(t, 30, settings.ReminderDelayMinutes)
}

func TestCleanupEndpoint(t *testing.T) {
	srv, st := setupServer(t)
	pinDay(st, "2025-10-31", "12:00")

	require.NoError(t, st.UpsertNote("2025-09-01", "old"))
	require.NoError(t, st.UpsertNote("2025-10-30", "recent"))

	resp, body := doJSON(t, srv, "POST", "/api/cleanup", fiberMap{"retention_days": 30})
	require.Equal(t, 200, resp.StatusCode)
	var result store.CleanupResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, int64(1), result.Notes)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	resp, body := doJSON(t, srv, "GET", "/metrics", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

// fiberMap mirrors fiber.Map for request bodies.
type fiberMap = map[string]interface{}
