package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/medtab/medtab/internal/dates"
)

// CleanupResult reports how many rows a cleanup pass removed.
type CleanupResult struct {
	Intakes     int64 `json:"intakes"`
	Notes       int64 `json:"notes"`
	Configs     int64 `json:"configs"`
	Medications int64 `json:"medications"`
}

// CleanupOldData purges history older than the retention horizon.
// cutoff = today - retentionDays. Intakes and notes strictly before the
// cutoff are deleted (the boundary day is kept); closed config versions
// whose validity ended at or before the cutoff are deleted. A medication is
// deleted outright when, after config deletion, no surviving config has an
// effective end date at or past the cutoff; deleting it cascades to its
// times, configs and intakes.
func (s *Store) CleanupOldData(retentionDays int) (CleanupResult, error) {
	var result CleanupResult
	if retentionDays <= 0 {
		return result, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff, err := dates.AddDays(s.Today(), -retentionDays)
	if err != nil {
		return result, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("scheduled_date < ?", cutoff).Delete(&MedicationIntake{})
		if res.Error != nil {
			return res.Error
		}
		result.Intakes = res.RowsAffected

		res = tx.Where("note_date < ?", cutoff).Delete(&DailyNote{})
		if res.Error != nil {
			return res.Error
		}
		result.Notes = res.RowsAffected

		// Closed config versions only: the current row carries the max-date
		// sentinel and can never satisfy valid_to <= cutoff. Remember which
		// medications lost rows so fully-expired ones can be told apart from
		// never-configured ones below.
		var expiredMedIDs []string
		if err := tx.Model(&MedicationConfig{}).Where("valid_to <= ?", cutoff).
			Distinct().Pluck("medication_id", &expiredMedIDs).Error; err != nil {
			return err
		}
		hadExpired := make(map[string]bool, len(expiredMedIDs))
		for _, id := range expiredMedIDs {
			hadExpired[id] = true
		}

		res = tx.Where("valid_to <= ?", cutoff).Delete(&MedicationConfig{})
		if res.Error != nil {
			return res.Error
		}
		result.Configs = res.RowsAffected

		var meds []Medication
		if err := tx.Find(&meds).Error; err != nil {
			return err
		}

		for _, med := range meds {
			var count int64
			if err := tx.Model(&MedicationConfig{}).Where("medication_id = ?", med.ID).
				Count(&count).Error; err != nil {
				return err
			}

			if count == 0 {
				// A medication that never had a config is merely unconfigured,
				// not expired; only reap it when this pass deleted its rows.
				if !hadExpired[med.ID] {
					continue
				}
				if err := deleteMedicationTx(tx, med.ID); err != nil {
					return err
				}
				result.Medications++
				continue
			}

			var maxEnd string
			if err := tx.Model(&MedicationConfig{}).Where("medication_id = ?", med.ID).
				Select("MAX(end_date)").Scan(&maxEnd).Error; err != nil {
				return err
			}
			if maxEnd < cutoff {
				if err := deleteMedicationTx(tx, med.ID); err != nil {
					return err
				}
				result.Medications++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if result.Intakes+result.Notes+result.Configs+result.Medications > 0 {
		s.notifyChanged()
	}
	return result, nil
}
