package schedule

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/store"
)

// Snapshot is one emission of the live schedule view.
type Snapshot struct {
	Date    string     `json:"date"`
	Items   []DayItem  `json:"items"`
	Summary DaySummary `json:"summary"`
}

// Watcher turns the builder into a continuously-updating view of one
// selected date. It recomputes the whole day whenever the store reports any
// change, and whenever the selected date moves. Recomputation is wholesale;
// there is no incremental patching, so out-of-order upstream updates cannot
// corrupt the view. A rebuild for a superseded date (or an older generation
// of the same date) is canceled and its result discarded.
type Watcher struct {
	builder *Builder
	store   *store.Store
	logger  *zap.Logger

	out     chan Snapshot
	changes <-chan struct{}

	mu     sync.Mutex
	date   string
	gen    uint64
	cancel context.CancelFunc

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher initially focused on date.
func NewWatcher(builder *Builder, st *store.Store, logger *zap.Logger, date string) *Watcher {
	w := &Watcher{
		builder: builder,
		store:   st,
		logger:  logger,
		out:     make(chan Snapshot, 4),
		changes: st.Subscribe(),
		date:    date,
		stop:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()
	w.rebuild()
	return w
}

// Out delivers view snapshots. Consumers always receive the full joined
// state for the currently selected date.
func (w *Watcher) Out() <-chan Snapshot {
	return w.out
}

// SetDate moves the view to a different calendar date, canceling any
// rebuild still in flight for the previous one.
func (w *Watcher) SetDate(date string) {
	w.mu.Lock()
	w.date = date
	w.mu.Unlock()
	w.rebuild()
}

// Close stops the watcher and releases its store subscription.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		if w.cancel != nil {
			w.cancel()
		}
		w.mu.Unlock()
		w.store.Unsubscribe(w.changes)
	})
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-w.changes:
			w.rebuild()
		}
	}
}

// rebuild recomputes the view asynchronously. The generation counter makes
// sure a slow rebuild can never publish over a newer one.
func (w *Watcher) rebuild() {
	// SetDate can race with Close when the caller's reader loop shuts
	// down; a closed watcher must not spawn new rebuild goroutines.
	select {
	case <-w.stop:
		return
	default:
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.gen++
	gen := w.gen
	date := w.date
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		items, err := w.builder.BuildDay(date)
		if err != nil {
			w.logger.Warn("schedule rebuild failed",
				zap.String("date", date),
				zap.Error(err),
			)
			return
		}
		if ctx.Err() != nil {
			return
		}

		w.mu.Lock()
		stale := gen != w.gen
		w.mu.Unlock()
		if stale {
			return
		}

		snap := Snapshot{Date: date, Items: items, Summary: Summarize(items)}
		select {
		case w.out <- snap:
		case <-w.stop:
		default:
			// Drop oldest behavior: clear one slot and retry so the
			// consumer always ends on the freshest snapshot.
			select {
			case <-w.out:
			default:
			}
			select {
			case w.out <- snap:
			default:
			}
		}
	}()
}
