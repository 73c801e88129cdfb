package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/pagecast/pagecast/internal/repository"
)

type OpsHandler struct {
	dl repository.DeadLetterRepository
}

func NewOpsHandler(dl repository.DeadLetterRepository) *OpsHandler {
	return &OpsHandler{dl: dl}
}

func (h *OpsHandler) ListDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	letters, err := h.dl.ListRecent(c.Context(), limit)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list dead letters",
		})
	}

	return c.Status(fiber.StatusOK).JSON(letters)
}
