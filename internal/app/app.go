// Package app wires the store, scheduler, alarm service and API server
// together and owns process lifecycle.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/alarm"
	"github.com/medtab/medtab/internal/api"
	"github.com/medtab/medtab/internal/config"
	"github.com/medtab/medtab/internal/notify"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

type App struct {
	Config    *config.Config
	Store     *store.Store
	Logger    *zap.Logger
	Builder   *schedule.Builder
	Alarms    *alarm.Service
	Scheduler *notify.Scheduler
	Version   string
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) *App {
	app := &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
	}

	app.Builder = schedule.NewBuilder(st, logger)
	notifier := notify.NewLogNotifier(logger)

	// The scheduler handles fired alarms and the alarm service's midnight
	// refresh re-derives the whole pending table, so a device that slept
	// through a day wakes up with a correct alarm set.
	app.Alarms = alarm.NewService(st, logger, func(key string, payload json.RawMessage) {
		app.Scheduler.HandleAlarm(key, payload)
	}, func() {
		if err := app.Scheduler.RescheduleAll(); err != nil {
			logger.Error("Midnight refresh failed", zap.Error(err))
		}
	})
	app.Scheduler = notify.NewScheduler(st, app.Builder, app.Alarms, notifier, cfg, logger)
	return app
}

// RunServer starts the alarm service and the API server and blocks until
// SIGINT/SIGTERM.
func (app *App) RunServer() {
	if err := app.Alarms.Start(); err != nil {
		app.Logger.Fatal("Failed to start alarm service", zap.Error(err))
	}

	// Boot recovery: the persisted alarm table may be stale relative to
	// edits made while the process was down.
	if err := app.Scheduler.RescheduleAll(); err != nil {
		app.Logger.Error("Failed to reschedule notifications on boot", zap.Error(err))
	}

	if app.Config.Retention.Enabled {
		result, err := app.Store.CleanupOldData(app.Config.Retention.Days)
		if err != nil {
			app.Logger.Error("Retention cleanup failed", zap.Error(err))
		} else {
			app.Logger.Info("Retention cleanup done",
				zap.Int64("intakes", result.Intakes),
				zap.Int64("notes", result.Notes),
				zap.Int64("configs", result.Configs),
				zap.Int64("medications", result.Medications),
			)
		}
	}

	server := api.New(app.Config, app.Store, app.Builder, app.Scheduler, app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("version", app.Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	app.Alarms.Stop()
	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
	app.Logger.Info("Goodbye")
}
