package dto

import (
	"time"

	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/internal/service"
	"github.com/noc-kit/faultdesk/internal/ttr"
)

// OpenTicketRequest payload.
type OpenTicketRequest struct {
	IncidentNumbers []string   `json:"incident_numbers"`
	SiteCode        string     `json:"site_code"`
	SiteName        string     `json:"site_name"`
	Category        string     `json:"category"`
	TTRTargetHours  float64    `json:"ttr_target_hours"`
	OpenedAt        *time.Time `json:"opened_at"`
	IsPermanent     bool       `json:"is_permanent"`
	Technicians     []string   `json:"technicians"`
	Location        string     `json:"location"`
	Cause           string     `json:"cause"`
}

// ApplyUpdateRequest payload.
type ApplyUpdateRequest struct {
	Status            *string    `json:"status"`
	Message           string     `json:"message"`
	Attachments       []string   `json:"attachments"`
	ClosedAt          *time.Time `json:"closed_at"`
	Cause             string     `json:"cause"`
	Location          string     `json:"location"`
	AddTechnicians    []string   `json:"add_technicians"`
	RemoveTechnicians []string   `json:"remove_technicians"`
}

// TicketResponse carries the ticket snapshot plus its live TTR state. The
// TTR fields are recomputed per request, never served from a stored value.
type TicketResponse struct {
	ID              string              `json:"id"`
	IncidentNumbers []string            `json:"incident_numbers"`
	SiteCode        string              `json:"site_code"`
	SiteName        string              `json:"site_name"`
	Category        string              `json:"category"`
	Status          domain.TicketStatus `json:"status"`
	TTRTargetHours  float64             `json:"ttr_target_hours"`
	OpenedAt        time.Time           `json:"opened_at"`
	Deadline        time.Time           `json:"deadline"`
	ClosedAt        *time.Time          `json:"closed_at"`
	Compliance      *domain.Compliance  `json:"compliance"`
	IsPermanent     bool                `json:"is_permanent"`
	Technicians     []string            `json:"technicians"`
	Cause           string              `json:"cause"`
	Location        string              `json:"location"`
	RemainingHours  float64             `json:"remaining_hours"`
	Severity        ttr.Severity        `json:"severity"`
	DueSoon         bool                `json:"due_soon"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ProgressUpdateResponse represents one history entry.
type ProgressUpdateResponse struct {
	ID          string               `json:"id"`
	TicketID    string               `json:"ticket_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Message     string               `json:"message"`
	Origin      domain.UpdateOrigin  `json:"origin"`
	StatusAfter *domain.TicketStatus `json:"status_after"`
	Attachments []string             `json:"attachments"`
}

// TTRSettingsPayload is the admin-facing threshold document.
type TTRSettingsPayload struct {
	WarningHours         float64 `json:"warning_hours"`
	CriticalHours        float64 `json:"critical_hours"`
	DueSoonHours         float64 `json:"due_soon_hours"`
	NoUpdateAlertMinutes int     `json:"no_update_alert_minutes"`
}

// FromTicketView maps a service view onto the wire shape.
func FromTicketView(view *service.TicketView) TicketResponse {
	ticket := view.Ticket
	return TicketResponse{
		ID:              ticket.ID,
		IncidentNumbers: ticket.IncidentNumbers,
		SiteCode:        ticket.SiteCode,
		SiteName:        ticket.SiteName,
		Category:        ticket.Category,
		Status:          ticket.Status,
		TTRTargetHours:  ticket.TTRTargetHours,
		OpenedAt:        ticket.OpenedAt,
		Deadline:        view.Deadline,
		ClosedAt:        ticket.ClosedAt,
		Compliance:      ticket.Compliance,
		IsPermanent:     ticket.IsPermanent,
		Technicians:     ticket.Technicians,
		Cause:           ticket.Cause,
		Location:        ticket.Location,
		RemainingHours:  view.RemainingHours,
		Severity:        view.Severity,
		DueSoon:         view.DueSoon,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
}

// FromProgressUpdate maps a history entry onto the wire shape.
func FromProgressUpdate(update *domain.ProgressUpdate) ProgressUpdateResponse {
	return ProgressUpdateResponse{
		ID:          update.ID,
		TicketID:    update.TicketID,
		Timestamp:   update.Timestamp,
		Message:     update.Message,
		Origin:      update.Origin,
		StatusAfter: update.StatusAfter,
		Attachments: update.Attachments,
	}
}
