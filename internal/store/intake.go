package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/medtab/medtab/internal/dates"
)

// Intake rows are created lazily: no row means "unchecked". Toggling is
// idempotent and unchecking a nonexistent row never creates one.

// GetIntake returns the intake row for (medication, slot, date), nil when
// none has been recorded.
func (s *Store) GetIntake(medicationID string, sequenceNumber int, date string) (*MedicationIntake, error) {
	var intake MedicationIntake
	err := s.db.Where("medication_id = ? AND sequence_number = ? AND scheduled_date = ?",
		medicationID, sequenceNumber, date).First(&intake).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intake, nil
}

// IntakesForDate returns all intake rows recorded for one calendar day.
func (s *Store) IntakesForDate(date string) ([]MedicationIntake, error) {
	var intakes []MedicationIntake
	err := s.db.Where("scheduled_date = ?", date).Find(&intakes).Error
	return intakes, err
}

// SetTaken marks a dose slot taken or not taken for a date. Marking taken
// upserts the row and stamps TakenAt with the current clock time; repeating
// the call only refreshes the stamp. Unchecking clears TakenAt, and is a
// no-op when no row exists.
func (s *Store) SetTaken(medicationID string, sequenceNumber int, date string, taken bool) error {
	if !dates.Valid(date) {
		return fmt.Errorf("invalid date %q", date)
	}

	mutated := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var intake MedicationIntake
		err := tx.Where("medication_id = ? AND sequence_number = ? AND scheduled_date = ?",
			medicationID, sequenceNumber, date).First(&intake).Error

		if err == gorm.ErrRecordNotFound {
			if !taken {
				return nil
			}
			now := s.now().Format("15:04")
			mutated = true
			return tx.Create(&MedicationIntake{
				MedicationID:   medicationID,
				SequenceNumber: sequenceNumber,
				ScheduledDate:  date,
				TakenAt:        &now,
			}).Error
		}
		if err != nil {
			return err
		}

		mutated = true
		if taken {
			now := s.now().Format("15:04")
			return tx.Model(&MedicationIntake{}).Where("id = ?", intake.ID).
				Update("taken_at", &now).Error
		}
		return tx.Model(&MedicationIntake{}).Where("id = ?", intake.ID).
			Update("taken_at", nil).Error
	})
	if err != nil {
		return err
	}
	if mutated {
		s.notifyChanged()
	}
	return nil
}

// SetCanceled marks a dose slot canceled or uncanceled for a date. Same
// lazy-upsert shape as SetTaken.
func (s *Store) SetCanceled(medicationID string, sequenceNumber int, date string, canceled bool) error {
	if !dates.Valid(date) {
		return fmt.Errorf("invalid date %q", date)
	}

	mutated := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var intake MedicationIntake
		err := tx.Where("medication_id = ? AND sequence_number = ? AND scheduled_date = ?",
			medicationID, sequenceNumber, date).First(&intake).Error

		if err == gorm.ErrRecordNotFound {
			if !canceled {
				return nil
			}
			mutated = true
			return tx.Create(&MedicationIntake{
				MedicationID:   medicationID,
				SequenceNumber: sequenceNumber,
				ScheduledDate:  date,
				Canceled:       true,
			}).Error
		}
		if err != nil {
			return err
		}

		if intake.Canceled == canceled {
			return nil
		}
		mutated = true
		return tx.Model(&MedicationIntake{}).Where("id = ?", intake.ID).
			Update("canceled", canceled).Error
	})
	if err != nil {
		return err
	}
	if mutated {
		s.notifyChanged()
	}
	return nil
}
