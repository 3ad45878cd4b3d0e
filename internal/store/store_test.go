package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/medtab/medtab/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
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

	store, err := Open(db, badgerDB)
	require.NoError(t, err)
	return store
}

// pinToday fixes the store clock so "today" is deterministic.
func pinToday(s *Store, date string, clock string) {
	fixed, _ := time.Parse("2006-01-02 15:04", date+" "+clock)
	s.SetNow(func() time.Time { return fixed })
}

func TestCreateAndGetMedication(t *testing.T) {
	s := setupTestStore(t)

	med, err := s.CreateMedication("Aspirin")
	require.NoError(t, err)
	require.NotEmpty(t, med.ID)

	got, err := s.GetMedication(med.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Aspirin", got.Name)

	missing, err := s.GetMedication("nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRenameMedication(t *testing.T) {
	s := setupTestStore(t)

	med, err := s.CreateMedication("Aspirin")
	require.NoError(t, err)

	require.NoError(t, s.RenameMedication(med.ID, "Aspirin 100mg"))
	got, err := s.GetMedication(med.ID)
	require.NoError(t, err)
	require.Equal(t, "Aspirin 100mg", got.Name)

	err = s.RenameMedication("nope", "anything")
	require.True(t, errors.Is(err, apperrors.ErrMedicationNotFound))
}

func TestDeleteMedicationMissing(t *testing.T) {
	s := setupTestStore(t)
	err := s.DeleteMedication("nope")
	require.True(t, errors.Is(err, apperrors.ErrMedicationNotFound))
}

func TestSubscribeSignalsOnMutation(t *testing.T) {
	s := setupTestStore(t)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	_, err := s.CreateMedication("Aspirin")
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change notification after create")
	}
}
