package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/leads/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is a booked calendar slot.
type Event struct {
	ID          string    `db:"id"`
	Summary     string    `db:"summary"`
	Description string    `db:"description"`
	Attendees   []string  `db:"attendees"`
	Start       time.Time `db:"start_time"`
	End         time.Time `db:"end_time"`
}

// Repository reads calendar events synced into the calendar_events table.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a new calendar repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

const eventColumns = `id, summary, description, attendees, start_time, end_time`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Summary, &e.Description, &e.Attendees, &e.Start, &e.End)
	return e, err
}

// RecentEvents returns events created within the last hoursBack hours.
func (r *Repository) RecentEvents(ctx context.Context, hoursBack float64) ([]Event, error) {
	since := r.now().UTC().Add(-time.Duration(hoursBack * float64(time.Hour)))
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE created_at >= $1
		ORDER BY created_at ASC, id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// FindEventByAttendee returns the latest-starting event naming email
// as an attendee or mentioning it in the summary or description. Nil when none.
func (r *Repository) FindEventByAttendee(ctx context.Context, email string) (*Event, error) {
	normalized := domain.NormalizeEmail(email)
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE EXISTS (SELECT 1 FROM unnest(attendees) a WHERE lower(a) = $1)
		   OR position($1 in lower(summary)) > 0
		   OR position($1 in lower(description)) > 0
		ORDER BY start_time DESC
		LIMIT 1`, normalized)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find calendar event: %w", err)
	}
	return &e, nil
}
