package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noc-kit/faultdesk/internal/domain"
)

// InsertProgress appends an immutable progress row. Seq is assigned by the
// database sequence and breaks timestamp ties in creation order.
func (s *PostgresStore) InsertProgress(ctx context.Context, update *domain.ProgressUpdate) error {
	const query = `
        INSERT INTO progress_updates (id, ticket_id, ts, message, origin, status_after, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING
        RETURNING seq`
	err := s.db.QueryRow(ctx, query,
		update.ID,
		update.TicketID,
		update.Timestamp,
		update.Message,
		update.Origin,
		update.StatusAfter,
		update.Attachments,
	).Scan(&update.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row already exists: a re-driven pending intent. Keep the original.
		return s.db.QueryRow(ctx,
			`SELECT seq FROM progress_updates WHERE id=$1`, update.ID).Scan(&update.Seq)
	}
	return err
}

func (s *PostgresStore) ListProgressByTicket(ctx context.Context, ticketID string) ([]domain.ProgressUpdate, error) {
	const query = `
        SELECT id, ticket_id, ts, message, origin, status_after, attachments, seq
        FROM progress_updates WHERE ticket_id=$1 ORDER BY ts ASC, seq ASC`
	rows, err := s.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProgressUpdate
	for rows.Next() {
		var update domain.ProgressUpdate
		if err := rows.Scan(
			&update.ID,
			&update.TicketID,
			&update.Timestamp,
			&update.Message,
			&update.Origin,
			&update.StatusAfter,
			&update.Attachments,
			&update.Seq,
		); err != nil {
			return nil, err
		}
		result = append(result, update)
	}
	return result, rows.Err()
}

// LatestProgressAt returns the timestamp of the most recent update, or nil
// when the ticket has none.
func (s *PostgresStore) LatestProgressAt(ctx context.Context, ticketID string) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(ctx,
		`SELECT ts FROM progress_updates WHERE ticket_id=$1 ORDER BY ts DESC, seq DESC LIMIT 1`,
		ticketID).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// DeleteProgressByTicket removes all progress rows for a ticket. Only the
// administrative purge may call this; normal operation never deletes history.
func (s *PostgresStore) DeleteProgressByTicket(ctx context.Context, ticketID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM progress_updates WHERE ticket_id=$1`, ticketID)
	return err
}
