// Package alarm implements the device-alarm service: a single pending-alarm
// table keyed by an opaque string, persisted so pending wake-ups survive a
// restart, with a recurring midnight refresh hook.
package alarm

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/metrics"
	"github.com/medtab/medtab/internal/store"
)

// Handler receives a fired alarm's key and payload. It runs on the
// service's own goroutine; blocking work belongs downstream.
type Handler func(key string, payload json.RawMessage)

// Service arms one wake-up per key. Arming an already-armed key replaces
// the pending alarm, so callers can re-arm unconditionally and never
// double-fire. Pending alarms are written through to the store and
// reloaded on Start, firing anything that came due while stopped.
type Service struct {
	store   *store.Store
	logger  *zap.Logger
	handler Handler
	refresh func()

	now func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool

	cron *cron.Cron
	wg   sync.WaitGroup
}

// NewService creates an alarm service. handler receives fired alarms;
// refresh runs at every midnight rollover (may be nil).
func NewService(st *store.Store, logger *zap.Logger, handler Handler, refresh func()) *Service {
	return &Service{
		store:   st,
		logger:  logger,
		handler: handler,
		refresh: refresh,
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
	}
}

// SetNow overrides the service clock for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start reloads persisted alarms and begins the midnight refresh schedule.
// Alarms that came due while the process was down fire immediately.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("alarm service already running")
	}
	s.running = true
	now := s.now()
	s.mu.Unlock()

	pending, err := s.store.ListAlarms()
	if err != nil {
		return fmt.Errorf("failed to load pending alarms: %w", err)
	}

	for _, a := range pending {
		if !a.At.After(now) {
			s.logger.Info("firing alarm missed while stopped",
				zap.String("key", a.Key),
				zap.Time("at", a.At),
			)
			s.fire(a.Key)
			continue
		}
		s.startTimer(a.Key, a.At.Sub(now))
	}

	s.cron = cron.New()
	if s.refresh != nil {
		if _, err := s.cron.AddFunc("0 0 * * *", s.refresh); err != nil {
			return fmt.Errorf("failed to schedule midnight refresh: %w", err)
		}
	}
	s.cron.Start()

	s.logger.Info("alarm service started", zap.Int("reloaded", len(pending)))
	return nil
}

// Stop cancels in-process timers without touching the persisted table, so
// the next Start picks the same alarms back up.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("alarm service stopped")
}

// Arm schedules a wake-up for key at the given time, replacing any pending
// alarm under the same key. A time at or before now fires immediately.
func (s *Service) Arm(key string, at time.Time, payload json.RawMessage) error {
	if err := s.store.PutAlarm(store.PendingAlarm{Key: key, At: at, Payload: payload}); err != nil {
		return fmt.Errorf("failed to persist alarm %q: %w", key, err)
	}
	metrics.Default().RecordAlarmArmed()

	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	if !s.running {
		return nil
	}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(key)
	})
	return nil
}

// Cancel removes the pending alarm for key, if any.
func (s *Service) Cancel(key string) error {
	s.mu.Lock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	return s.store.DeleteAlarm(key)
}

// Pending reports whether key currently has an armed alarm.
func (s *Service) Pending(key string) (bool, error) {
	alarms, err := s.store.ListAlarms()
	if err != nil {
		return false, err
	}
	for _, a := range alarms {
		if a.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) startTimer(key string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(key)
	})
}

// fire delivers the alarm to the handler and clears it from the table. The
// handler re-arms the next occurrence itself; an alarm fires at most once.
func (s *Service) fire(key string) {
	s.mu.Lock()
	delete(s.timers, key)
	s.mu.Unlock()

	alarms, err := s.store.ListAlarms()
	if err != nil {
		s.logger.Error("failed to read alarm payload", zap.String("key", key), zap.Error(err))
		return
	}
	var payload json.RawMessage
	found := false
	for _, a := range alarms {
		if a.Key == key {
			payload = a.Payload
			found = true
			break
		}
	}
	if !found {
		// Canceled between expiry and delivery.
		return
	}

	if err := s.store.DeleteAlarm(key); err != nil {
		s.logger.Error("failed to clear fired alarm", zap.String("key", key), zap.Error(err))
	}
	metrics.Default().RecordAlarmFired()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handler(key, payload)
	}()
}
