package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, "medtab.db"), cfg.Storage.SQLitePath)
	assert.True(t, cfg.Notifications.Enabled)
	assert.True(t, cfg.Notifications.RemindersEnabled)
	assert.Equal(t, 15, cfg.Notifications.ReminderDelayMinutes)
	assert.Equal(t, 3, cfg.Notifications.HorizonDays)
	assert.Equal(t, 90, cfg.Retention.Days)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()

	os.Setenv("MEDTAB_SERVER_PORT", "9000")
	os.Setenv("MEDTAB_RETENTION_DAYS", "30")
	defer os.Unsetenv("MEDTAB_SERVER_PORT")
	defer os.Unsetenv("MEDTAB_RETENTION_DAYS")

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Retention.Days)
}

func TestUpdateSettingsPersists(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	n := cfg.Settings()
	n.Enabled = false
	n.ReminderDelayMinutes = 30
	require.NoError(t, cfg.UpdateSettings(n))

	reloaded, err := Load(filepath.Join(dir, "medtab.yaml"), dir)
	require.NoError(t, err)
	assert.False(t, reloaded.Notifications.Enabled)
	assert.Equal(t, 30, reloaded.Notifications.ReminderDelayMinutes)
}

func TestUpdateSettingsRejectsZeroDelay(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	n := cfg.Settings()
	n.ReminderDelayMinutes = 0
	require.NoError(t, cfg.UpdateSettings(n))

	// Zero delay falls back to the previous value
	assert.Equal(t, 15, cfg.Settings().ReminderDelayMinutes)
}
