package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medtab/medtab/internal/dates"
)

// Medication is the identity row for one tracked medication. Behavioral
// settings live in versioned MedicationConfig/MedicationTime rows; the
// medication itself is never versioned.
type Medication struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Configs []MedicationConfig `json:"-" gorm:"foreignKey:MedicationID;constraint:OnDelete:CASCADE"`
	Times   []MedicationTime   `json:"-" gorm:"foreignKey:MedicationID;constraint:OnDelete:CASCADE"`
	Intakes []MedicationIntake `json:"-" gorm:"foreignKey:MedicationID;constraint:OnDelete:CASCADE"`
}

func (m *Medication) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MedicationConfig is one version of a medication's behavioral settings,
// valid over the calendar-date interval [ValidFrom, ValidTo). The current
// version is the row with ValidTo == dates.Max; at most one such row exists
// per medication. Closed rows are never mutated.
type MedicationConfig struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	MedicationID string `gorm:"index;not null" json:"medication_id"`

	Kind      string  `json:"kind"`       // DAILY, WEEKLY, INTERVAL
	Param     string  `json:"param"`      // weekday set for WEEKLY, day count for INTERVAL
	StartDate string  `json:"start_date"` // medication start, YYYY-MM-DD
	EndDate   string  `json:"end_date"`   // dates.Max when open-ended
	PRN       bool    `json:"prn"`
	Dose      float64 `json:"dose"`
	DoseUnit  string  `json:"dose_unit"`

	ValidFrom string `gorm:"index" json:"valid_from"`
	ValidTo   string `gorm:"index" json:"valid_to"`

	CreatedAt time.Time `json:"created_at"`
}

// sameSettings reports whether the substantive fields match; validity
// interval and timestamps are excluded.
func (c *MedicationConfig) sameSettings(o ConfigChange) bool {
	return c.Kind == o.Kind &&
		c.Param == o.Param &&
		c.StartDate == o.StartDate &&
		c.EndDate == o.EndDate &&
		c.PRN == o.PRN &&
		c.Dose == o.Dose &&
		c.DoseUnit == o.DoseUnit
}

// MedicationTime is one version of a scheduled dose slot. SequenceNumber is
// assigned once per distinct slot and preserved across edits so intake
// history stays attached to the same slot even when its clock time changes.
type MedicationTime struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	MedicationID string `gorm:"index;not null" json:"medication_id"`

	SequenceNumber int     `gorm:"index" json:"sequence_number"`
	ClockTime      string  `json:"clock_time"` // HH:MM
	Dose           float64 `json:"dose"`       // 0 = use config default
	DoseUnit       string  `json:"dose_unit"`

	ValidFrom string `gorm:"index" json:"valid_from"`
	ValidTo   string `gorm:"index" json:"valid_to"`

	CreatedAt time.Time `json:"created_at"`
}

// MedicationIntake records one dose slot's state for one calendar day.
// (MedicationID, ScheduledDate, SequenceNumber) is the natural key; the row
// is created lazily on first toggle, absence means "unchecked".
type MedicationIntake struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	MedicationID string `gorm:"uniqueIndex:idx_intake_key;not null" json:"medication_id"`

	ScheduledDate  string `gorm:"uniqueIndex:idx_intake_key" json:"scheduled_date"`
	SequenceNumber int    `gorm:"uniqueIndex:idx_intake_key" json:"sequence_number"`

	TakenAt  *string `json:"taken_at,omitempty"` // HH:MM when marked taken
	Canceled bool    `json:"canceled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyNote is a free-text note for one calendar day, independent of any
// medication but sharing the retention policy.
type DailyNote struct {
	NoteDate  string    `gorm:"primaryKey;size:10" json:"note_date"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfigChange carries the requested settings for ApplyConfigChange.
type ConfigChange struct {
	Kind      string  `json:"kind"`
	Param     string  `json:"param"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	PRN       bool    `json:"prn"`
	Dose      float64 `json:"dose"`
	DoseUnit  string  `json:"dose_unit"`
}

// TimeSlot carries one requested dose slot for ApplyTimeSetChange.
// SequenceNumber 0 means "new or match by clock time"; a positive value pins
// the request to an existing slot so a clock-time edit keeps its history.
type TimeSlot struct {
	SequenceNumber int     `json:"sequence_number"`
	ClockTime      string  `json:"clock_time"`
	Dose           float64 `json:"dose"`
	DoseUnit       string  `json:"dose_unit"`
}

func (c *ConfigChange) normalize() {
	if c.EndDate == "" {
		c.EndDate = dates.Max
	}
}
