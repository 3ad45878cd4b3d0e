package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/alarm"
	"github.com/medtab/medtab/internal/config"
	"github.com/medtab/medtab/internal/dates"
	"github.com/medtab/medtab/internal/metrics"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

// Alarm key namespaces. One pending alarm per clock time per namespace.
const (
	primaryKeyPrefix  = "t:"
	reminderKeyPrefix = "r:"
)

// Payload rides on an armed alarm and comes back when it fires.
type Payload struct {
	Time     string `json:"time"`     // HH:MM
	Date     string `json:"date"`     // intended scheduled date
	Reminder bool   `json:"reminder"` // true for the follow-up alarm
}

// Scheduler keeps exactly one pending alarm per distinct clock time across
// all current dose slots, renews each alarm after it fires, and chains a
// delayed reminder while a dose stays unchecked.
type Scheduler struct {
	store    *store.Store
	builder  *schedule.Builder
	alarms   *alarm.Service
	notifier Notifier
	cfg      *config.Config
	logger   *zap.Logger

	now func() time.Time
}

// NewScheduler creates a notification scheduler. Wire its HandleAlarm as
// the alarm service's handler and RescheduleAll as its midnight refresh.
func NewScheduler(st *store.Store, builder *schedule.Builder, alarms *alarm.Service, notifier Notifier, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		builder:  builder,
		alarms:   alarms,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the scheduler clock for tests.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

// ComputeNextOccurrence scans forward from now, up to the configured
// horizon, for the first date on which a dose at clock is due and not yet
// taken. Canceled doses count as resolved. ok is false when nothing within
// the horizon needs this clock time.
func (s *Scheduler) ComputeNextOccurrence(clock string) (string, bool, error) {
	clockMinutes, err := dates.ClockMinutes(clock)
	if err != nil {
		return "", false, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}

	now := s.now()
	start := dates.Today(now)
	if now.Hour()*60+now.Minute() >= clockMinutes {
		// Today's instant has already passed.
		if start, err = dates.AddDays(start, 1); err != nil {
			return "", false, err
		}
	}

	horizon := s.cfg.Settings().HorizonDays
	if horizon <= 0 {
		horizon = 3
	}

	date := start
	for i := 0; i < horizon; i++ {
		names, err := s.uncheckedNames(date, clock)
		if err != nil {
			return "", false, err
		}
		if len(names) > 0 {
			return date, true, nil
		}
		if date, err = dates.AddDays(date, 1); err != nil {
			return "", false, err
		}
	}
	return "", false, nil
}

// RescheduleAll rebuilds the whole pending-alarm table from current state:
// one alarm per distinct clock time over the lookahead window, stale keys
// canceled. Safe to call at any time; arming is an idempotent replace.
func (s *Scheduler) RescheduleAll() error {
	settings := s.cfg.Settings()
	if !settings.Enabled {
		return s.CancelAll()
	}
	if !settings.RemindersEnabled {
		// Disabling reminders alone clears the reminder namespace while
		// primary alarms keep running.
		if err := s.cancelReminders(); err != nil {
			return err
		}
	}

	lookahead := settings.LookaheadDays
	if lookahead <= 0 {
		lookahead = 2
	}
	today := dates.Today(s.now())
	window := make([]string, 0, lookahead)
	date := today
	for i := 0; i < lookahead; i++ {
		window = append(window, date)
		var err error
		if date, err = dates.AddDays(date, 1); err != nil {
			return err
		}
	}

	clocks, err := s.store.DistinctClockTimes(window...)
	if err != nil {
		return fmt.Errorf("failed to enumerate clock times: %w", err)
	}

	active := make(map[string]bool, len(clocks))
	for _, clock := range clocks {
		active[clock] = true
		occurrence, ok, err := s.ComputeNextOccurrence(clock)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.alarms.Cancel(primaryKeyPrefix + clock); err != nil {
				return err
			}
			continue
		}
		if err := s.armPrimary(clock, occurrence); err != nil {
			return err
		}
	}

	// Drop primary alarms for clock times no current slot uses anymore.
	pending, err := s.store.ListAlarms()
	if err != nil {
		return err
	}
	for _, a := range pending {
		clock, ok := strings.CutPrefix(a.Key, primaryKeyPrefix)
		if !ok || active[clock] {
			continue
		}
		if err := s.alarms.Cancel(a.Key); err != nil {
			return err
		}
	}

	s.logger.Info("notifications rescheduled", zap.Int("clock_times", len(clocks)))
	return nil
}

// cancelReminders clears every pending reminder alarm and dismisses its
// notification, leaving primary alarms alone.
func (s *Scheduler) cancelReminders() error {
	pending, err := s.store.ListAlarms()
	if err != nil {
		return err
	}
	for _, a := range pending {
		clock, ok := strings.CutPrefix(a.Key, reminderKeyPrefix)
		if !ok {
			continue
		}
		if err := s.alarms.Cancel(a.Key); err != nil {
			return err
		}
		if id, err := IDForClock(clock); err == nil {
			_ = s.notifier.Cancel(id + ReminderIDOffset)
		}
	}
	return nil
}

// CancelAll clears every pending alarm in both namespaces and dismisses any
// notification still showing for them.
func (s *Scheduler) CancelAll() error {
	pending, err := s.store.ListAlarms()
	if err != nil {
		return err
	}
	for _, a := range pending {
		clock, primary := strings.CutPrefix(a.Key, primaryKeyPrefix)
		if !primary {
			var reminder bool
			clock, reminder = strings.CutPrefix(a.Key, reminderKeyPrefix)
			if !reminder {
				continue
			}
		}
		if err := s.alarms.Cancel(a.Key); err != nil {
			return err
		}
		if id, err := IDForClock(clock); err == nil {
			if primary {
				_ = s.notifier.Cancel(id)
			} else {
				_ = s.notifier.Cancel(id + ReminderIDOffset)
			}
		}
	}
	return nil
}

// HandleAlarm is the alarm service's delivery callback.
func (s *Scheduler) HandleAlarm(key string, raw json.RawMessage) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Error("malformed alarm payload", zap.String("key", key), zap.Error(err))
		return
	}

	if p.Reminder {
		s.handleReminder(p)
		return
	}
	s.handlePrimary(p)
}

// handlePrimary shows the notification for a fired dose time, arms the
// follow-up reminder, and re-arms the next occurrence of this clock time.
func (s *Scheduler) handlePrimary(p Payload) {
	clockMinutes, err := dates.ClockMinutes(p.Time)
	if err != nil {
		s.logger.Error("malformed alarm clock time", zap.String("time", p.Time), zap.Error(err))
		return
	}

	// Day-rollover correction: a wake-up delivered after midnight for a
	// pre-midnight slot still belongs to yesterday's schedule.
	now := s.now()
	resolved := dates.Today(now)
	if now.Hour()*60+now.Minute() < clockMinutes {
		if resolved, err = dates.AddDays(resolved, -1); err != nil {
			s.logger.Error("failed to resolve alarm date", zap.Error(err))
			return
		}
	}

	names, err := s.uncheckedNames(resolved, p.Time)
	if err != nil {
		s.logger.Error("failed to build due list for alarm",
			zap.String("date", resolved),
			zap.String("time", p.Time),
			zap.Error(err),
		)
		return
	}

	settings := s.cfg.Settings()
	if len(names) > 0 && settings.Enabled {
		id, err := IDForClock(p.Time)
		if err != nil {
			s.logger.Error("failed to derive notification id", zap.Error(err))
			return
		}
		if err := s.notifier.Show(Notification{
			ID:    id,
			Title: fmt.Sprintf("Medications due at %s", p.Time),
			Body:  strings.Join(names, ", "),
		}); err != nil {
			s.logger.Error("failed to show notification", zap.Error(err))
		} else {
			metrics.Default().RecordNotification("primary")
		}

		if settings.RemindersEnabled {
			delay := settings.ReminderDelayMinutes
			if delay <= 0 {
				delay = 15
			}
			payload, _ := json.Marshal(Payload{Time: p.Time, Date: resolved, Reminder: true})
			at := now.Add(time.Duration(delay) * time.Minute)
			if err := s.alarms.Arm(reminderKeyPrefix+p.Time, at, payload); err != nil {
				s.logger.Error("failed to arm reminder", zap.Error(err))
			}
		}
	}

	// Self-renewing chain: even when everything at this slot was already
	// resolved and the notification was suppressed, the next occurrence
	// still gets armed.
	occurrence, ok, err := s.ComputeNextOccurrence(p.Time)
	if err != nil {
		s.logger.Error("failed to compute next occurrence",
			zap.String("time", p.Time),
			zap.Error(err),
		)
		return
	}
	if !ok {
		return
	}
	if err := s.armPrimary(p.Time, occurrence); err != nil {
		s.logger.Error("failed to re-arm alarm", zap.String("time", p.Time), zap.Error(err))
	}
}

// handleReminder re-queries the same (date, time) and notifies again only
// if something is still unchecked.
func (s *Scheduler) handleReminder(p Payload) {
	settings := s.cfg.Settings()
	if !settings.Enabled || !settings.RemindersEnabled {
		return
	}

	names, err := s.uncheckedNames(p.Date, p.Time)
	if err != nil {
		s.logger.Error("failed to build due list for reminder",
			zap.String("date", p.Date),
			zap.String("time", p.Time),
			zap.Error(err),
		)
		return
	}
	if len(names) == 0 {
		return
	}

	id, err := IDForClock(p.Time)
	if err != nil {
		s.logger.Error("failed to derive reminder id", zap.Error(err))
		return
	}
	if err := s.notifier.Show(Notification{
		ID:    id + ReminderIDOffset,
		Title: fmt.Sprintf("Reminder: medications still due at %s", p.Time),
		Body:  strings.Join(names, ", "),
	}); err != nil {
		s.logger.Error("failed to show reminder", zap.Error(err))
	} else {
		metrics.Default().RecordNotification("reminder")
	}
}

func (s *Scheduler) armPrimary(clock, date string) error {
	at, err := dates.At(date, clock, s.now().Location())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Payload{Time: clock, Date: date})
	if err != nil {
		return err
	}
	return s.alarms.Arm(primaryKeyPrefix+clock, at, payload)
}

// uncheckedNames lists medications with an unchecked dose at clock on date,
// sorted by name. PRN entries have no clock time and never match.
func (s *Scheduler) uncheckedNames(date, clock string) ([]string, error) {
	items, err := s.builder.BuildDay(date)
	if err != nil {
		return nil, err
	}
	var names []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.ClockTime != clock || item.Status != schedule.StatusUnchecked {
			continue
		}
		if seen[item.MedicationName] {
			continue
		}
		seen[item.MedicationName] = true
		names = append(names, item.MedicationName)
	}
	sort.Strings(names)
	return names, nil
}
