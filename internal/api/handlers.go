package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/medtab/medtab/internal/dates"
	apperrors "github.com/medtab/medtab/internal/errors"
	"github.com/medtab/medtab/internal/metrics"
	"github.com/medtab/medtab/internal/schedule"
	"github.com/medtab/medtab/internal/store"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

// notFound renders a typed store error as a 404, carrying its stable code
// so clients can branch without parsing the message.
func notFound(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return c.Status(404).JSON(fiber.Map{"error": appErr.Message, "code": appErr.Code})
	}
	return c.Status(404).JSON(fiber.Map{"error": err.Error(), "code": apperrors.GetCode(err)})
}

// reschedule re-derives the pending-alarm table after a mutation that can
// change which doses are due.
func (s *Server) reschedule() {
	if err := s.scheduler.RescheduleAll(); err != nil {
		s.logger.Error("Failed to reschedule notifications", zap.Error(err))
	}
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds, err := s.store.ListMedications()
	if err != nil {
		s.logger.Error("Failed to list medications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list medications"})
	}
	return c.JSON(meds)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	med, err := s.store.CreateMedication(req.Name)
	if err != nil {
		s.logger.Error("Failed to create medication", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create medication"})
	}
	return c.Status(201).JSON(med)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.store.GetMedication(c.Params("id"))
	if err != nil {
		s.logger.Error("Failed to get medication", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to get medication"})
	}
	if med == nil {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}

	cfg, err := s.store.GetCurrentConfig(med.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load config"})
	}
	times, err := s.store.GetCurrentTimes(med.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load times"})
	}

	return c.JSON(fiber.Map{
		"medication": med,
		"config":     cfg,
		"times":      times,
	})
}

func (s *Server) handleRenameMedication(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	if err := s.store.RenameMedication(c.Params("id"), req.Name); err != nil {
		if errors.Is(err, apperrors.ErrMedicationNotFound) {
			return notFound(c, err)
		}
		s.logger.Error("Failed to rename medication", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to rename medication"})
	}
	return c.SendStatus(204)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.store.DeleteMedication(c.Params("id")); err != nil {
		if errors.Is(err, apperrors.ErrMedicationNotFound) {
			return notFound(c, err)
		}
		s.logger.Error("Failed to delete medication", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete medication"})
	}
	s.reschedule()
	return c.SendStatus(204)
}

func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var req store.ConfigChange
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.store.GetMedication(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to get medication"})
	}
	if med == nil {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}

	if err := s.store.ApplyConfigChange(med.ID, req); err != nil {
		s.logger.Warn("Rejected config change", zap.String("medication", med.ID), zap.Error(err))
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	s.reschedule()
	return c.SendStatus(204)
}

func (s *Server) handleUpdateTimes(c *fiber.Ctx) error {
	var req struct {
		Times []store.TimeSlot `json:"times"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	med, err := s.store.GetMedication(c.Params("id"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to get medication"})
	}
	if med == nil {
		return c.Status(404).JSON(fiber.Map{"error": "medication not found"})
	}

	if err := s.store.ApplyTimeSetChange(med.ID, req.Times); err != nil {
		s.logger.Warn("Rejected time set change", zap.String("medication", med.ID), zap.Error(err))
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	s.reschedule()
	return c.SendStatus(204)
}

func (s *Server) handleConfigHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	configs, err := s.store.ConfigHistory(id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load config history"})
	}
	times, err := s.store.TimeHistory(id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load time history"})
	}
	return c.JSON(fiber.Map{
		"configs": configs,
		"times":   times,
	})
}

// ==================== Schedule ====================

func (s *Server) handleGetSchedule(c *fiber.Ctx) error {
	date := c.Params("date")
	if !dates.Valid(date) {
		return c.Status(400).JSON(fiber.Map{"error": "invalid date"})
	}

	items, err := s.builder.BuildDay(date)
	if err != nil {
		s.logger.Error("Failed to build schedule", zap.String("date", date), zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to build schedule"})
	}

	return c.JSON(schedule.Snapshot{
		Date:    date,
		Items:   items,
		Summary: schedule.Summarize(items),
	})
}

// ==================== Intakes ====================

func (s *Server) handleSetIntake(c *fiber.Ctx) error {
	var req struct {
		MedicationID   string `json:"medication_id"`
		SequenceNumber int    `json:"sequence_number"`
		Date           string `json:"date"`
		Taken          *bool  `json:"taken"`
		Canceled       *bool  `json:"canceled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.MedicationID == "" || !dates.Valid(req.Date) {
		return c.Status(400).JSON(fiber.Map{"error": "medication_id and date are required"})
	}
	if req.Taken == nil && req.Canceled == nil {
		return c.Status(400).JSON(fiber.Map{"error": "taken or canceled is required"})
	}

	if req.Taken != nil {
		if err := s.store.SetTaken(req.MedicationID, req.SequenceNumber, req.Date, *req.Taken); err != nil {
			s.logger.Error("Failed to set taken", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{"error": "failed to record intake"})
		}
		if *req.Taken {
			metrics.Default().RecordIntakeToggle(schedule.StatusTaken)
		} else {
			metrics.Default().RecordIntakeToggle(schedule.StatusUnchecked)
		}
	}
	if req.Canceled != nil {
		if err := s.store.SetCanceled(req.MedicationID, req.SequenceNumber, req.Date, *req.Canceled); err != nil {
			s.logger.Error("Failed to set canceled", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{"error": "failed to record intake"})
		}
		if *req.Canceled {
			metrics.Default().RecordIntakeToggle(schedule.StatusCanceled)
		}
	}

	intake, err := s.store.GetIntake(req.MedicationID, req.SequenceNumber, req.Date)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load intake"})
	}
	return c.JSON(fiber.Map{"intake": intake})
}

// ==================== Notes ====================

func (s *Server) handleListNotes(c *fiber.Ctx) error {
	from := c.Query("from", dates.Min)
	to := c.Query("to", dates.Max)
	notes, err := s.store.ListNotes(from, to)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list notes"})
	}
	return c.JSON(notes)
}

func (s *Server) handleGetNote(c *fiber.Ctx) error {
	note, err := s.store.GetNote(c.Params("date"))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to get note"})
	}
	if note == nil {
		return c.Status(404).JSON(fiber.Map{"error": "note not found"})
	}
	return c.JSON(note)
}

func (s *Server) handleUpsertNote(c *fiber.Ctx) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.store.UpsertNote(c.Params("date"), req.Text); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(204)
}

func (s *Server) handleDeleteNote(c *fiber.Ctx) error {
	if err := s.store.DeleteNote(c.Params("date")); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete note"})
	}
	return c.SendStatus(204)
}

// ==================== Settings ====================

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.config.Settings())
}

func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	settings := s.config.Settings()
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.config.UpdateSettings(settings); err != nil {
		s.logger.Error("Failed to update settings", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to save settings"})
	}

	// Toggling notifications or reminders must take effect on the pending
	// alarm table immediately.
	s.reschedule()
	return c.JSON(s.config.Settings())
}

// ==================== Retention ====================

func (s *Server) handleCleanup(c *fiber.Ctx) error {
	days := s.config.Retention.Days
	var req struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := c.BodyParser(&req); err == nil && req.RetentionDays > 0 {
		days = req.RetentionDays
	}

	result, err := s.store.CleanupOldData(days)
	if err != nil {
		s.logger.Error("Cleanup failed", zap.Error(err))
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	m := metrics.Default()
	m.RecordCleanup("intakes", result.Intakes)
	m.RecordCleanup("notes", result.Notes)
	m.RecordCleanup("configs", result.Configs)
	m.RecordCleanup("medications", result.Medications)

	s.reschedule()
	return c.JSON(result)
}
