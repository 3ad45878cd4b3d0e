package store

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/medtab/medtab/internal/dates"
)

// Version-row queries and edits for medication configs and dose-time slots.
// Every edit closes the previously current row ([ValidFrom, today)) and
// opens a new one ([today, Max)) so past days always resolve against the
// rows that were valid then.

// GetCurrentConfig returns the config row with ValidTo == dates.Max, nil
// when the medication has never been configured.
func (s *Store) GetCurrentConfig(medicationID string) (*MedicationConfig, error) {
	var cfg MedicationConfig
	err := s.db.Where("medication_id = ? AND valid_to = ?", medicationID, dates.Max).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigAsOf returns the config row whose validity interval covers date,
// picking the latest ValidFrom on ties.
func (s *Store) GetConfigAsOf(medicationID, date string) (*MedicationConfig, error) {
	var cfg MedicationConfig
	err := s.db.Where("medication_id = ? AND valid_from <= ? AND valid_to > ?", medicationID, date, date).
		Order("valid_from DESC, id DESC").
		First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetCurrentTimes returns all dose-time rows with ValidTo == dates.Max.
func (s *Store) GetCurrentTimes(medicationID string) ([]MedicationTime, error) {
	var times []MedicationTime
	err := s.db.Where("medication_id = ? AND valid_to = ?", medicationID, dates.Max).
		Order("clock_time ASC, sequence_number ASC").
		Find(&times).Error
	return times, err
}

// ConfigHistory returns every config version for a medication, oldest
// first.
func (s *Store) ConfigHistory(medicationID string) ([]MedicationConfig, error) {
	var configs []MedicationConfig
	err := s.db.Where("medication_id = ?", medicationID).
		Order("valid_from ASC, id ASC").
		Find(&configs).Error
	return configs, err
}

// TimeHistory returns every dose-time version for a medication, grouped by
// slot and ordered by validity.
func (s *Store) TimeHistory(medicationID string) ([]MedicationTime, error) {
	var times []MedicationTime
	err := s.db.Where("medication_id = ?", medicationID).
		Order("sequence_number ASC, valid_from ASC, id ASC").
		Find(&times).Error
	return times, err
}

// GetTimesAsOf returns the dose-time rows valid on date.
func (s *Store) GetTimesAsOf(medicationID, date string) ([]MedicationTime, error) {
	var times []MedicationTime
	err := s.db.Where("medication_id = ? AND valid_from <= ? AND valid_to > ?", medicationID, date, date).
		Order("clock_time ASC, sequence_number ASC").
		Find(&times).Error
	return times, err
}

// ApplyConfigChange records a new config version. The first save opens at
// dates.Min; later saves with different settings close the current row at
// today and open a new one from today. Identical settings are a no-op.
// Closed rows are never touched.
func (s *Store) ApplyConfigChange(medicationID string, change ConfigChange) error {
	change.normalize()
	if err := validateConfigChange(change); err != nil {
		return err
	}
	today := s.Today()

	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var current MedicationConfig
		err := tx.Where("medication_id = ? AND valid_to = ?", medicationID, dates.Max).First(&current).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			changed = true
			return tx.Create(&MedicationConfig{
				MedicationID: medicationID,
				Kind:         change.Kind,
				Param:        change.Param,
				StartDate:    change.StartDate,
				EndDate:      change.EndDate,
				PRN:          change.PRN,
				Dose:         change.Dose,
				DoseUnit:     change.DoseUnit,
				ValidFrom:    dates.Min,
				ValidTo:      dates.Max,
			}).Error
		case err != nil:
			return err
		}

		if current.sameSettings(change) {
			return nil
		}
		changed = true

		if err := tx.Model(&MedicationConfig{}).Where("id = ?", current.ID).
			Update("valid_to", today).Error; err != nil {
			return err
		}
		return tx.Create(&MedicationConfig{
			MedicationID: medicationID,
			Kind:         change.Kind,
			Param:        change.Param,
			StartDate:    change.StartDate,
			EndDate:      change.EndDate,
			PRN:          change.PRN,
			Dose:         change.Dose,
			DoseUnit:     change.DoseUnit,
			ValidFrom:    today,
			ValidTo:      dates.Max,
		}).Error
	})
	if err != nil {
		return err
	}
	if changed {
		s.notifyChanged()
	}
	return nil
}

func validateConfigChange(c ConfigChange) error {
	if !dates.Valid(c.StartDate) {
		return fmt.Errorf("invalid start date %q", c.StartDate)
	}
	if !dates.Valid(c.EndDate) {
		return fmt.Errorf("invalid end date %q", c.EndDate)
	}
	if c.EndDate < c.StartDate {
		return fmt.Errorf("end date %s before start date %s", c.EndDate, c.StartDate)
	}
	return nil
}

// ApplyTimeSetChange reconciles the medication's current dose slots against
// the requested set. Slots request-pinned by sequence number keep their
// history across clock-time edits; unpinned slots match current rows by
// clock time. Removed slots close at today, new slots take the next unused
// sequence number and open at today.
func (s *Store) ApplyTimeSetChange(medicationID string, requested []TimeSlot) error {
	if err := validateTimeSet(requested); err != nil {
		return err
	}
	today := s.Today()

	changed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var current []MedicationTime
		if err := tx.Where("medication_id = ? AND valid_to = ?", medicationID, dates.Max).
			Find(&current).Error; err != nil {
			return err
		}

		bySeq := make(map[int]*MedicationTime, len(current))
		byClock := make(map[string]*MedicationTime, len(current))
		for i := range current {
			bySeq[current[i].SequenceNumber] = &current[i]
			byClock[current[i].ClockTime] = &current[i]
		}

		matched := make(map[int]bool) // sequence numbers consumed by a request

		// Sequence numbers are assigned once and only grow; scan all rows,
		// not just the current ones.
		var maxSeq int
		if err := tx.Model(&MedicationTime{}).Where("medication_id = ?", medicationID).
			Select("COALESCE(MAX(sequence_number), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}

		reopen := func(old *MedicationTime, slot TimeSlot) error {
			changed = true
			if err := tx.Model(&MedicationTime{}).Where("id = ?", old.ID).
				Update("valid_to", today).Error; err != nil {
				return err
			}
			return tx.Create(&MedicationTime{
				MedicationID:   medicationID,
				SequenceNumber: old.SequenceNumber,
				ClockTime:      slot.ClockTime,
				Dose:           slot.Dose,
				DoseUnit:       slot.DoseUnit,
				ValidFrom:      today,
				ValidTo:        dates.Max,
			}).Error
		}

		for _, slot := range requested {
			if slot.SequenceNumber > 0 {
				old, ok := bySeq[slot.SequenceNumber]
				if !ok {
					return fmt.Errorf("no current slot with sequence number %d", slot.SequenceNumber)
				}
				matched[old.SequenceNumber] = true
				if old.ClockTime == slot.ClockTime && old.Dose == slot.Dose && old.DoseUnit == slot.DoseUnit {
					continue
				}
				if err := reopen(old, slot); err != nil {
					return err
				}
				continue
			}

			if old, ok := byClock[slot.ClockTime]; ok && !matched[old.SequenceNumber] {
				matched[old.SequenceNumber] = true
				if old.Dose == slot.Dose && old.DoseUnit == slot.DoseUnit {
					continue
				}
				if err := reopen(old, slot); err != nil {
					return err
				}
				continue
			}

			// Brand-new slot
			changed = true
			maxSeq++
			if err := tx.Create(&MedicationTime{
				MedicationID:   medicationID,
				SequenceNumber: maxSeq,
				ClockTime:      slot.ClockTime,
				Dose:           slot.Dose,
				DoseUnit:       slot.DoseUnit,
				ValidFrom:      today,
				ValidTo:        dates.Max,
			}).Error; err != nil {
				return err
			}
		}

		// Anything current and unmatched was removed from the set.
		for i := range current {
			if matched[current[i].SequenceNumber] {
				continue
			}
			changed = true
			if err := tx.Model(&MedicationTime{}).Where("id = ?", current[i].ID).
				Update("valid_to", today).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.notifyChanged()
	}
	return nil
}

func validateTimeSet(slots []TimeSlot) error {
	seen := make(map[string]bool, len(slots))
	for _, slot := range slots {
		if _, err := dates.ClockMinutes(slot.ClockTime); err != nil {
			return err
		}
		if seen[slot.ClockTime] {
			return fmt.Errorf("duplicate dose time %s", slot.ClockTime)
		}
		seen[slot.ClockTime] = true
	}
	return nil
}

// DistinctClockTimes returns every distinct HH:MM appearing in any
// medication's slots valid on at least one of the given dates, sorted.
func (s *Store) DistinctClockTimes(onDates ...string) ([]string, error) {
	set := make(map[string]bool)
	for _, date := range onDates {
		var clocks []string
		err := s.db.Model(&MedicationTime{}).
			Where("valid_from <= ? AND valid_to > ?", date, date).
			Distinct().
			Pluck("clock_time", &clocks).Error
		if err != nil {
			return nil, err
		}
		for _, c := range clocks {
			set[c] = true
		}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
