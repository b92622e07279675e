package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noc-kit/faultdesk/internal/api/dto"
	"github.com/noc-kit/faultdesk/internal/auth"
	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/internal/repository"
	"github.com/noc-kit/faultdesk/internal/service"
	apperrors "github.com/noc-kit/faultdesk/pkg/util"
)

// TicketsHandler exposes the lifecycle commands and read paths.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// OpenTicket POST /tickets.
func (h *TicketsHandler) OpenTicket(c *fiber.Ctx) error {
	var req dto.OpenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.OpenTicket(c.UserContext(), service.OpenTicketInput{
		IncidentNumbers: req.IncidentNumbers,
		SiteCode:        req.SiteCode,
		SiteName:        req.SiteName,
		Category:        req.Category,
		TTRTargetHours:  req.TTRTargetHours,
		OpenedAt:        req.OpenedAt,
		IsPermanent:     req.IsPermanent,
		Technicians:     req.Technicians,
		Location:        req.Location,
		Cause:           req.Cause,
	})
	if err != nil {
		return err
	}
	view, err := h.service.GetTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicketView(view)})
}

// ApplyUpdate POST /tickets/:id/updates.
func (h *TicketsHandler) ApplyUpdate(c *fiber.Ctx) error {
	claims, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ApplyUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.UpdateInput{
		Message:           req.Message,
		Origin:            claims.Origin(),
		Attachments:       req.Attachments,
		ClosedAt:          req.ClosedAt,
		Cause:             req.Cause,
		Location:          req.Location,
		AddTechnicians:    req.AddTechnicians,
		RemoveTechnicians: req.RemoveTechnicians,
	}
	if req.Status != nil {
		status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		input.RequestedStatus = &status
	}

	result, err := h.service.ApplyUpdate(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return err
	}
	view, err := h.service.GetTicket(c.UserContext(), result.Ticket.ID)
	if err != nil {
		return err
	}
	response := fiber.Map{"data": dto.FromTicketView(view)}
	if result.Progress != nil {
		response["progress"] = dto.FromProgressUpdate(result.Progress)
	}
	return c.JSON(response)
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	view, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicketView(view)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := repository.TicketFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	if site := c.Query("site_code"); site != "" {
		filter.SiteCode = &site
	}
	if c.QueryBool("open_only", false) {
		filter.OpenOnly = true
	}
	if cursor := c.Query("changed_since"); cursor != "" {
		parsed, err := time.Parse(time.RFC3339, cursor)
		if err != nil {
			return apperrors.NewValidationError("changed_since must be RFC3339", nil)
		}
		filter.ChangedSince = &parsed
	}

	views, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		items = append(items, dto.FromTicketView(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListUpdates GET /tickets/:id/updates.
func (h *TicketsHandler) ListUpdates(c *fiber.Ctx) error {
	updates, err := h.service.ListProgress(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ProgressUpdateResponse, 0, len(updates))
	for i := range updates {
		items = append(items, dto.FromProgressUpdate(&updates[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// PurgeTicket DELETE /tickets/:id. Admin only; idempotent.
func (h *TicketsHandler) PurgeTicket(c *fiber.Ctx) error {
	if err := h.service.PurgeTicket(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
