package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noc-kit/faultdesk/internal/domain"
	"github.com/noc-kit/faultdesk/pkg/util"
)

const ticketColumns = `id, incident_numbers, site_code, site_name, category, status,
       ttr_target_hours, opened_at, closed_at, compliance, is_permanent,
       technicians, cause, location, remaining_hint, pending_intent,
       created_at, updated_at`

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	ticket, err := scanTicket(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *PostgresStore) InsertTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, incident_numbers, site_code, site_name, category, status,
            ttr_target_hours, opened_at, closed_at, compliance, is_permanent,
            technicians, cause, location, remaining_hint, pending_intent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING created_at, updated_at`
	return s.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.IncidentNumbers,
		ticket.SiteCode,
		ticket.SiteName,
		ticket.Category,
		ticket.Status,
		ticket.TTRTargetHours,
		ticket.OpenedAt,
		ticket.ClosedAt,
		ticket.Compliance,
		ticket.IsPermanent,
		ticket.Technicians,
		ticket.Cause,
		ticket.Location,
		ticket.RemainingHint,
		ticket.PendingIntent,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET incident_numbers=$1, site_code=$2, site_name=$3, category=$4,
            status=$5, ttr_target_hours=$6, opened_at=$7, closed_at=$8, compliance=$9,
            is_permanent=$10, technicians=$11, cause=$12, location=$13,
            remaining_hint=$14, pending_intent=$15, updated_at=NOW()
        WHERE id=$16`
	cmd, err := s.db.Exec(ctx, query,
		ticket.IncidentNumbers,
		ticket.SiteCode,
		ticket.SiteName,
		ticket.Category,
		ticket.Status,
		ticket.TTRTargetHours,
		ticket.OpenedAt,
		ticket.ClosedAt,
		ticket.Compliance,
		ticket.IsPermanent,
		ticket.Technicians,
		ticket.Cause,
		ticket.Location,
		ticket.RemainingHint,
		ticket.PendingIntent,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	return nil
}

// DeleteTicket removes a ticket row. Deleting an unknown id is not an error:
// the administrative purge must be idempotent.
func (s *PostgresStore) DeleteTicket(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	return err
}

// UpdateRemainingHint writes the denormalized remaining-hours value. The hint
// exists for querying and sorting only; read paths always recompute from the
// source timestamps.
func (s *PostgresStore) UpdateRemainingHint(ctx context.Context, id string, hint float64) error {
	_, err := s.db.Exec(ctx, `UPDATE tickets SET remaining_hint=$1 WHERE id=$2`, hint, id)
	return err
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenOnly {
		args = append(args, domain.TicketStatusClosed)
		clauses = append(clauses, fmt.Sprintf("status <> $%d", len(args)))
	}
	if filter.SiteCode != nil {
		args = append(args, *filter.SiteCode)
		clauses = append(clauses, fmt.Sprintf("site_code=$%d", len(args)))
	}
	if filter.ChangedSince != nil {
		args = append(args, *filter.ChangedSince)
		clauses = append(clauses, fmt.Sprintf("updated_at > $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.IncidentNumbers,
		&ticket.SiteCode,
		&ticket.SiteName,
		&ticket.Category,
		&ticket.Status,
		&ticket.TTRTargetHours,
		&ticket.OpenedAt,
		&ticket.ClosedAt,
		&ticket.Compliance,
		&ticket.IsPermanent,
		&ticket.Technicians,
		&ticket.Cause,
		&ticket.Location,
		&ticket.RemainingHint,
		&ticket.PendingIntent,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
