package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtab/medtab/internal/dates"
)

// Retention boundary semantics: today = 2025-10-31, retention 30 days,
// cutoff = 2025-10-01. Intakes and notes on the cutoff day survive (strict
// <); configs with validTo exactly at the cutoff are deleted (<=).

func TestCleanupIntakeBoundary(t *testing.T) {
	s := setupTestStore(t)
	pinToday(s, "2025-10-31", "12:00")
	med, _ := s.CreateMedication("Aspirin")

	require.NoError(t, s.SetTaken(med.ID, 1, "2025-10-01", true)) // exactly 30 days: kept
	require.NoError(t, s.SetTaken(med.ID, 1, "2025-09-30", true)) // 31 days: deleted

	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Intakes)

	kept, _ := s.GetIntake(med.ID, 1, "2025-10-01")
	assert.NotNil(t, kept)
	gone, _ := s.GetIntake(med.ID, 1, "2025-09-30")
	assert.Nil(t, gone)
}

func TestCleanupNotes(t *testing.T) {
	s := setupTestStore(t)
	pinToday(s, "2025-10-31", "12:00")

	require.NoError(t, s.UpsertNote("2025-10-01", "boundary day"))
	require.NoError(t, s.UpsertNote("2025-09-28", "old"))

	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Notes)

	kept, _ := s.GetNote("2025-10-01")
	assert.NotNil(t, kept)
}

func TestCleanupConfigBoundaryInclusive(t *testing.T) {
	s := setupTestStore(t)
	med, _ := s.CreateMedication("Aspirin")

	// First version closed exactly at the cutoff date: deleted (<=).
	pinToday(s, "2025-10-01", "12:00")
	require.NoError(t, s.ApplyConfigChange(med.ID, dailyConfig("2025-09-01")))
	edited := dailyConfig("2025-09-01")
	edited.Dose = 2
	require.NoError(t, s.ApplyConfigChange(med.ID, edited))

	pinToday(s, "2025-10-31", "12:00")
	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Configs)

	// The current config survives
	current, err := s.GetCurrentConfig(med.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.EqualValues(t, 2, current.Dose)
	assert.EqualValues(t, 0, res.Medications)
}

func TestCleanupDeletesFullyExpiredMedication(t *testing.T) {
	s := setupTestStore(t)

	// Medication that ended long ago: its only config was closed well
	// before the cutoff, so both the config and the medication go.
	pinToday(s, "2025-06-01", "12:00")
	med, _ := s.CreateMedication("OldCourse")
	cfg := dailyConfig("2025-05-01")
	cfg.EndDate = "2025-05-31"
	require.NoError(t, s.ApplyConfigChange(med.ID, cfg))
	require.NoError(t, s.ApplyTimeSetChange(med.ID, []TimeSlot{{ClockTime: "08:00"}}))
	require.NoError(t, s.SetTaken(med.ID, 1, "2025-05-10", true))

	// Close the current config by ending the medication
	ended := cfg
	ended.Param = "x" // force a version bump
	require.NoError(t, s.ApplyConfigChange(med.ID, ended))
	s.DB().Model(&MedicationConfig{}).Where("medication_id = ? AND valid_to = ?", med.ID, dates.Max).
		Update("valid_to", "2025-06-01")

	pinToday(s, "2025-12-01", "12:00")
	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Medications)

	// Cascade: nothing left behind
	var configs, times, intakes int64
	s.DB().Model(&MedicationConfig{}).Where("medication_id = ?", med.ID).Count(&configs)
	s.DB().Model(&MedicationTime{}).Where("medication_id = ?", med.ID).Count(&times)
	s.DB().Model(&MedicationIntake{}).Where("medication_id = ?", med.ID).Count(&intakes)
	assert.Zero(t, configs)
	assert.Zero(t, times)
	assert.Zero(t, intakes)

	gone, _ := s.GetMedication(med.ID)
	assert.Nil(t, gone)
}

func TestCleanupKeepsActiveMedication(t *testing.T) {
	s := setupTestStore(t)
	pinToday(s, "2025-01-01", "12:00")
	med, _ := s.CreateMedication("Aspirin")
	require.NoError(t, s.ApplyConfigChange(med.ID, dailyConfig("2025-01-01")))

	pinToday(s, "2025-12-01", "12:00")
	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Medications)

	still, _ := s.GetMedication(med.ID)
	assert.NotNil(t, still)
}

func TestCleanupKeepsUnconfiguredMedication(t *testing.T) {
	s := setupTestStore(t)
	pinToday(s, "2025-12-01", "12:00")
	med, _ := s.CreateMedication("JustAdded")

	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Medications)

	still, _ := s.GetMedication(med.ID)
	assert.NotNil(t, still)
}

func TestCleanupEmptyStoreIsNoOp(t *testing.T) {
	s := setupTestStore(t)

	res, err := s.CleanupOldData(30)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, res)

	// Arbitrarily large retention is also a no-op
	res, err = s.CleanupOldData(100000)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, res)
}

func TestCleanupRejectsNonPositiveRetention(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.CleanupOldData(0)
	assert.Error(t, err)
}

func TestDeleteMedicationCascades(t *testing.T) {
	s := setupTestStore(t)
	pinToday(s, "2025-10-10", "12:00")
	med, _ := s.CreateMedication("Aspirin")
	require.NoError(t, s.ApplyConfigChange(med.ID, dailyConfig("2025-10-01")))
	require.NoError(t, s.ApplyTimeSetChange(med.ID, []TimeSlot{{ClockTime: "08:00"}}))
	require.NoError(t, s.SetTaken(med.ID, 1, "2025-10-10", true))

	require.NoError(t, s.DeleteMedication(med.ID))

	var configs, times, intakes int64
	s.DB().Model(&MedicationConfig{}).Count(&configs)
	s.DB().Model(&MedicationTime{}).Count(&times)
	s.DB().Model(&MedicationIntake{}).Count(&intakes)
	assert.Zero(t, configs)
	assert.Zero(t, times)
	assert.Zero(t, intakes)
}
