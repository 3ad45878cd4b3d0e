package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlarmTableRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	at := time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutAlarm(PendingAlarm{
		Key:     "notify:09:00",
		At:      at,
		Payload: json.RawMessage(`{"time":"09:00"}`),
	}))

	alarms, err := s.ListAlarms()
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, "notify:09:00", alarms[0].Key)
	assert.True(t, alarms[0].At.Equal(at))
}

func TestPutAlarmReplacesSameKey(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.PutAlarm(PendingAlarm{Key: "notify:09:00", At: time.Now()}))
	later := time.Now().Add(24 * time.Hour)
	require.NoError(t, s.PutAlarm(PendingAlarm{Key: "notify:09:00", At: later}))

	alarms, err := s.ListAlarms()
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.True(t, alarms[0].At.Equal(later))
}

func TestDeleteAlarm(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.PutAlarm(PendingAlarm{Key: "notify:09:00", At: time.Now()}))
	require.NoError(t, s.DeleteAlarm("notify:09:00"))
	require.NoError(t, s.DeleteAlarm("notify:09:00")) // missing key: no-op

	alarms, err := s.ListAlarms()
	require.NoError(t, err)
	assert.Empty(t, alarms)
}

func TestClearAlarms(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.PutAlarm(PendingAlarm{Key: "notify:09:00", At: time.Now()}))
	require.NoError(t, s.PutAlarm(PendingAlarm{Key: "remind:09:00", At: time.Now()}))
	require.NoError(t, s.ClearAlarms())

	alarms, err := s.ListAlarms()
	require.NoError(t, err)
	assert.Empty(t, alarms)
}
