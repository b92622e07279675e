package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noc-kit/faultdesk/internal/api/dto"
	"github.com/noc-kit/faultdesk/internal/settings"
	apperrors "github.com/noc-kit/faultdesk/pkg/util"
)

// SettingsHandler exposes the runtime-mutable TTR thresholds.
type SettingsHandler struct {
	store settings.Store
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(store settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetTTRSettings GET /settings/ttr.
func (h *SettingsHandler) GetTTRSettings(c *fiber.Ctx) error {
	values, err := h.store.TTRSettings(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TTRSettingsPayload{
		WarningHours:         values.WarningHours,
		CriticalHours:        values.CriticalHours,
		DueSoonHours:         values.DueSoonHours,
		NoUpdateAlertMinutes: values.NoUpdateAlertMinutes,
	}})
}

// UpdateTTRSettings PUT /settings/ttr. Admin only; takes effect on the next
// evaluation because providers re-read per call.
func (h *SettingsHandler) UpdateTTRSettings(c *fiber.Ctx) error {
	var req dto.TTRSettingsPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.WarningHours <= 0 || req.CriticalHours <= 0 || req.DueSoonHours <= 0 {
		return apperrors.NewValidationError("threshold hours must be positive", nil)
	}
	if req.CriticalHours > req.WarningHours {
		return apperrors.NewValidationError("critical_hours must not exceed warning_hours", nil)
	}

	err := h.store.UpdateTTRSettings(c.UserContext(), settings.TTRSettings{
		WarningHours:         req.WarningHours,
		CriticalHours:        req.CriticalHours,
		DueSoonHours:         req.DueSoonHours,
		NoUpdateAlertMinutes: req.NoUpdateAlertMinutes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": req})
}
