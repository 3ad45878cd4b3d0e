// Package notify turns scheduled dose times into user notifications: it
// decides when the next wake-up for each clock time should fire, shows the
// primary notification, and chains a delayed reminder while a dose stays
// unchecked.
package notify

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/dates"
)

// ReminderIDOffset separates reminder notification ids from primary ids so
// a reminder can never replace the notification it follows up on.
const ReminderIDOffset = 100000

// Notification is one user-visible alert.
type Notification struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers notifications to the user. Implementations must treat
// Show with a repeated id as a replace, matching platform tray semantics.
type Notifier interface {
	Show(n Notification) error
	Cancel(id int) error
}

// IDForClock derives the deterministic notification id for a clock time,
// "09:00" becoming 900. Re-arming the same clock therefore replaces the
// pending notification instead of stacking a duplicate.
func IDForClock(clock string) (int, error) {
	minutes, err := dates.ClockMinutes(clock)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}
	return (minutes/60)*100 + minutes%60, nil
}

// LogNotifier writes notifications to the structured log. It stands in for
// a platform tray on headless installs and records shown ids so tests can
// assert delivery.
type LogNotifier struct {
	logger *zap.Logger

	mu    sync.Mutex
	shown map[int]Notification
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, shown: make(map[int]Notification)}
}

func (l *LogNotifier) Show(n Notification) error {
	l.mu.Lock()
	l.shown[n.ID] = n
	l.mu.Unlock()

	l.logger.Info("notification",
		zap.Int("id", n.ID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

func (l *LogNotifier) Cancel(id int) error {
	l.mu.Lock()
	delete(l.shown, id)
	l.mu.Unlock()
	return nil
}

// Shown returns the notification currently held under id, if any.
func (l *LogNotifier) Shown(id int) (Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.shown[id]
	return n, ok
}
