package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medtab/medtab/internal/dates"
)

// GetNote returns the note for a date, nil when none exists.
func (s *Store) GetNote(date string) (*DailyNote, error) {
	var note DailyNote
	err := s.db.Where("note_date = ?", date).First(&note).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// UpsertNote writes the free-text note for a date, replacing any previous
// text. An empty text deletes the note.
func (s *Store) UpsertNote(date, text string) error {
	if !dates.Valid(date) {
		return fmt.Errorf("invalid date %q", date)
	}

	if text == "" {
		return s.DeleteNote(date)
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "note_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
	}).Create(&DailyNote{NoteDate: date, Text: text}).Error
	if err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// DeleteNote removes the note for a date; absent notes are a no-op.
func (s *Store) DeleteNote(date string) error {
	res := s.db.Where("note_date = ?", date).Delete(&DailyNote{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.notifyChanged()
	}
	return nil
}

// ListNotes returns notes within [from, to], newest first.
func (s *Store) ListNotes(from, to string) ([]DailyNote, error) {
	var notes []DailyNote
	err := s.db.Where("note_date >= ? AND note_date <= ?", from, to).
		Order("note_date DESC").
		Find(&notes).Error
	return notes, err
}
