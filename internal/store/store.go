// Package store persists medications, their versioned configuration, intake
// history and daily notes in SQLite, and the pending-alarm table in BadgerDB.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/medtab/medtab/internal/config"
	apperrors "github.com/medtab/medtab/internal/errors"
)

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB

	now func() time.Time

	mu   sync.Mutex
	subs []chan struct{}
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "medtab.db")
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "alarms")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return Open(db, badgerDB)
}

// Open wraps already-opened database handles. Used directly by tests.
func Open(db *gorm.DB, badgerDB *badger.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&Medication{},
		&MedicationConfig{},
		&MedicationTime{},
		&MedicationIntake{},
		&DailyNote{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		now:    time.Now,
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	if s.badger != nil {
		return s.badger.Close()
	}
	return nil
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SetNow overrides the store's clock. Tests use this to pin "today".
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// Today returns the store clock's current calendar date.
func (s *Store) Today() string {
	return s.now().Format("2006-01-02")
}

// ==================== Change Notification ====================

// Subscribe returns a channel that receives a signal after every mutation.
// Signals coalesce: a slow consumer sees at least one signal for any burst
// of writes. The schedule watcher rebuilds its view from this.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a previously subscribed channel.
func (s *Store) Unsubscribe(ch <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ==================== Medication Methods ====================

// CreateMedication creates a new medication identity row.
func (s *Store) CreateMedication(name string) (*Medication, error) {
	med := &Medication{Name: name}
	if err := s.db.Create(med).Error; err != nil {
		return nil, err
	}
	s.notifyChanged()
	return med, nil
}

// GetMedication retrieves a medication by ID, nil when absent.
func (s *Store) GetMedication(id string) (*Medication, error) {
	var med Medication
	err := s.db.First(&med, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &med, nil
}

// ListMedications lists all medications ordered by name.
func (s *Store) ListMedications() ([]Medication, error) {
	var meds []Medication
	err := s.db.Order("name ASC, id ASC").Find(&meds).Error
	return meds, err
}

// RenameMedication updates the display name only.
func (s *Store) RenameMedication(id, name string) error {
	res := s.db.Model(&Medication{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrMedicationNotFound
	}
	s.notifyChanged()
	return nil
}

// DeleteMedication removes a medication and everything it owns: configs,
// times, and intake history.
func (s *Store) DeleteMedication(id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return deleteMedicationTx(tx, id)
	})
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// deleteMedicationTx cascades explicitly; the pure-Go sqlite driver does not
// enforce foreign keys unless asked, so the store never relies on it.
func deleteMedicationTx(tx *gorm.DB, id string) error {
	if err := tx.Where("medication_id = ?", id).Delete(&MedicationIntake{}).Error; err != nil {
		return err
	}
	if err := tx.Where("medication_id = ?", id).Delete(&MedicationTime{}).Error; err != nil {
		return err
	}
	if err := tx.Where("medication_id = ?", id).Delete(&MedicationConfig{}).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", id).Delete(&Medication{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrMedicationNotFound
	}
	return nil
}
