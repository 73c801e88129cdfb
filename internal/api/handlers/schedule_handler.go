package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pagecast/pagecast/internal/queue"
	"github.com/pagecast/pagecast/internal/service"
	"github.com/pagecast/pagecast/internal/transfer"
)

const scheduleTimeLayout = "2006-01-02T15:04"

type ScheduleHandler struct {
	s service.ScheduleService
	q queue.JobQueue
}

func NewScheduleHandler(s service.ScheduleService, q queue.JobQueue) *ScheduleHandler {
	return &ScheduleHandler{s: s, q: q}
}

func (h *ScheduleHandler) SchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	at, err := time.Parse(scheduleTimeLayout, req.ScheduledTime)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid scheduled time format",
		})
	}

	warning, err := h.s.Schedule(c.Context(), userID, req.PostID, at)
	if err != nil {
		return scheduleError(c, err)
	}

	resp := fiber.Map{"message": "Post scheduled successfully"}
	if warning != "" {
		resp["warning"] = warning
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *ScheduleHandler) UnschedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.UnscheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	if err := h.s.Unschedule(c.Context(), userID, req.PostID); err != nil {
		return scheduleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post unscheduled",
	})
}

func (h *ScheduleHandler) ReschedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	at, err := time.Parse(scheduleTimeLayout, req.ScheduledTime)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid scheduled time format",
		})
	}

	warning, err := h.s.Reschedule(c.Context(), userID, req.PostID, at)
	if err != nil {
		return scheduleError(c, err)
	}

	resp := fiber.Map{"message": "Post rescheduled"}
	if warning != "" {
		resp["warning"] = warning
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *ScheduleHandler) PublishNow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.PublishNowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	result, err := h.s.PublishNow(c.Context(), userID, req.PostID)
	if err != nil {
		return scheduleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": result.Status,
		"summary": transfer.PublishSummary{
			Total:      result.Total,
			Successful: result.Successful,
			Failed:     result.Failed,
		},
		"targets": result.Targets,
	})
}

func (h *ScheduleHandler) PostInfo(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	detail, err := h.s.PostInfo(c.Context(), userID, int64(postID))
	if err != nil {
		return scheduleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(detail)
}

// SweepNow lets an operator run overdue recovery on demand. The job goes to
// the critical queue so it runs ahead of regular publish work.
func (h *ScheduleHandler) SweepNow(c *fiber.Ctx) error {
	var req transfer.SweepRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	if err := h.q.Enqueue(c.Context(), queue.NewManualSweepJob(req.UserID)); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to trigger sweep",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Sweep triggered",
	})
}

func scheduleError(c *fiber.Ctx, err error) error {
	if service.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	slog.Error(err.Error())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
