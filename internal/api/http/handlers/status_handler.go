package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/status-engine/internal/api/dto"
	"github.com/spec-kit/status-engine/internal/authority"
	"github.com/spec-kit/status-engine/internal/domain"
	"github.com/spec-kit/status-engine/internal/service"
	apperrors "github.com/spec-kit/status-engine/pkg/util"
)

// StatusHandler exposes the status facade over HTTP.
type StatusHandler struct {
	service *service.StatusService
}

// NewStatusHandler constructs handler.
func NewStatusHandler(statusService *service.StatusService) *StatusHandler {
	return &StatusHandler{service: statusService}
}

// GetStatus GET /status/:id.
func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	result := h.service.GetStatus(c.UserContext(), c.Params("id"))
	return c.JSON(fiber.Map{"data": result})
}

// UpdateStatus POST /status/:id/update.
func (h *StatusHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	if !domain.KnownStatus(req.Status) {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}

	ticketID := c.Params("id")
	if !h.service.ValidateStatusTransition(c.UserContext(), ticketID, req.Status) {
		current := h.service.GetStatus(c.UserContext(), ticketID).CurrentStatus
		return apperrors.NewTransitionInvalid(string(current), string(req.Status))
	}

	result, err := h.service.UpdateStatus(c.UserContext(), ticketID, req.Status, req.UpdatedBy, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// ValidateTransition GET /status/:id/validate?to=<status>.
func (h *StatusHandler) ValidateTransition(c *fiber.Ctx) error {
	next := domain.Status(c.Query("to"))
	if next == "" {
		return apperrors.NewValidationError("to query parameter required", nil)
	}
	ticketID := c.Params("id")
	allowed := h.service.ValidateStatusTransition(c.UserContext(), ticketID, next)
	return c.JSON(fiber.Map{"data": dto.ValidateTransitionResponse{
		TicketID:        ticketID,
		RequestedStatus: next,
		Allowed:         allowed,
	}})
}

// GetHistory GET /status/:id/history?limit&startDate&endDate.
func (h *StatusHandler) GetHistory(c *fiber.Ctx) error {
	query := authority.HistoryQuery{}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return apperrors.NewValidationError("invalid limit", nil)
		}
		query.Limit = limit
	}
	if raw := c.Query("startDate"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid startDate", nil)
		}
		query.StartDate = &start
	}
	if raw := c.Query("endDate"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid endDate", nil)
		}
		query.EndDate = &end
	}

	history := h.service.GetStatusHistory(c.UserContext(), c.Params("id"), query)
	return c.JSON(fiber.Map{"data": history})
}

// BatchStatus POST /status/batch.
func (h *StatusHandler) BatchStatus(c *fiber.Ctx) error {
	var req dto.BatchStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.TicketIDs) == 0 {
		return apperrors.NewValidationError("ticketIds required", nil)
	}
	entries := h.service.GetBatchStatus(c.UserContext(), req.TicketIDs)
	return c.JSON(fiber.Map{"data": entries})
}

// StatusUpdates POST /status/updates?since=<RFC3339>.
func (h *StatusHandler) StatusUpdates(c *fiber.Ctx) error {
	var req dto.StatusUpdatesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.TicketIDs) == 0 {
		return apperrors.NewValidationError("ticketIds required", nil)
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid since", nil)
		}
		since = &parsed
	}

	updates, err := h.service.GetStatusUpdates(c.UserContext(), req.TicketIDs, since)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updates})
}
