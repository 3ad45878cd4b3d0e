// Package schedule derives the per-day dose list from the versioned store
// and exposes it as a continuously-updating view.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/dates"
	"github.com/medtab/medtab/internal/metrics"
	"github.com/medtab/medtab/internal/recurrence"
	"github.com/medtab/medtab/internal/store"
)

// Dose item status for one day.
const (
	StatusUnchecked = "unchecked"
	StatusTaken     = "taken"
	StatusCanceled  = "canceled"
)

// PRN entries carry no dose slot; they use sequence number zero.
const PRNSequence = 0

// DayItem is one due dose on one calendar day, resolved against the config
// and time-slot versions that were valid on that day.
type DayItem struct {
	MedicationID   string  `json:"medication_id"`
	MedicationName string  `json:"medication_name"`
	SequenceNumber int     `json:"sequence_number"`
	ClockTime      string  `json:"clock_time,omitempty"` // empty for PRN
	Dose           float64 `json:"dose"`
	DoseUnit       string  `json:"dose_unit"`
	PRN            bool    `json:"prn"`
	Status         string  `json:"status"`
	TakenAt        string  `json:"taken_at,omitempty"`
}

// DaySummary counts items per status for one day.
type DaySummary struct {
	Total     int `json:"total"`
	Taken     int `json:"taken"`
	Unchecked int `json:"unchecked"`
	Canceled  int `json:"canceled"`
}

// Builder computes the due list for a date.
type Builder struct {
	store  *store.Store
	logger *zap.Logger
}

// NewBuilder creates a schedule builder.
func NewBuilder(st *store.Store, logger *zap.Logger) *Builder {
	return &Builder{store: st, logger: logger}
}

// BuildDay returns the doses due on date, ordered by clock time with PRN
// entries last. Historical dates resolve against the config and slot rows
// valid then, so today's edits never rewrite past days.
func (b *Builder) BuildDay(date string) ([]DayItem, error) {
	if !dates.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	defer func(started time.Time) {
		metrics.Default().RecordScheduleBuild(time.Since(started))
	}(time.Now())

	meds, err := b.store.ListMedications()
	if err != nil {
		return nil, err
	}

	intakes, err := b.store.IntakesForDate(date)
	if err != nil {
		return nil, err
	}
	type intakeKey struct {
		med string
		seq int
	}
	byKey := make(map[intakeKey]*store.MedicationIntake, len(intakes))
	for i := range intakes {
		byKey[intakeKey{intakes[i].MedicationID, intakes[i].SequenceNumber}] = &intakes[i]
	}

	var items []DayItem
	for _, med := range meds {
		cfg, err := b.store.GetConfigAsOf(med.ID, date)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			// Not yet configured; contributes nothing.
			continue
		}

		if !recurrence.IsDue(recurrence.Kind(cfg.Kind), cfg.Param, cfg.StartDate, cfg.EndDate, date) {
			continue
		}

		if cfg.PRN {
			item := DayItem{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				SequenceNumber: PRNSequence,
				Dose:           cfg.Dose,
				DoseUnit:       cfg.DoseUnit,
				PRN:            true,
			}
			applyIntake(&item, byKey[intakeKey{med.ID, PRNSequence}])
			items = append(items, item)
			continue
		}

		slots, err := b.store.GetTimesAsOf(med.ID, date)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			item := DayItem{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				SequenceNumber: slot.SequenceNumber,
				ClockTime:      slot.ClockTime,
				Dose:           cfg.Dose,
				DoseUnit:       cfg.DoseUnit,
			}
			if slot.Dose > 0 {
				item.Dose = slot.Dose
				if slot.DoseUnit != "" {
					item.DoseUnit = slot.DoseUnit
				}
			}
			applyIntake(&item, byKey[intakeKey{med.ID, slot.SequenceNumber}])
			items = append(items, item)
		}
	}

	sortDay(items)
	return items, nil
}

// Summarize tallies statuses over a built day.
func Summarize(items []DayItem) DaySummary {
	sum := DaySummary{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case StatusTaken:
			sum.Taken++
		case StatusCanceled:
			sum.Canceled++
		default:
			sum.Unchecked++
		}
	}
	return sum
}

func applyIntake(item *DayItem, intake *store.MedicationIntake) {
	switch {
	case intake == nil:
		item.Status = StatusUnchecked
	case intake.Canceled:
		item.Status = StatusCanceled
	case intake.TakenAt != nil:
		item.Status = StatusTaken
		item.TakenAt = *intake.TakenAt
	default:
		item.Status = StatusUnchecked
	}
}

// sortDay orders timed entries by clock time ascending; PRN entries sort
// after all timed entries, by medication name then id.
func sortDay(items []DayItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.PRN != b.PRN {
			return !a.PRN
		}
		if a.PRN {
			if a.MedicationName != b.MedicationName {
				return a.MedicationName < b.MedicationName
			}
			return a.MedicationID < b.MedicationID
		}
		if a.ClockTime != b.ClockTime {
			return a.ClockTime < b.ClockTime
		}
		if a.MedicationName != b.MedicationName {
			return a.MedicationName < b.MedicationName
		}
		return a.SequenceNumber < b.SequenceNumber
	})
}
