package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = apperr.NotFound("lead not found")
	ErrAlreadyExists = apperr.Conflict("lead already exists")
)

const uniqueViolation = "23505"

const leadColumns = `
	email, name, phone, firm_name, practice_area, monthly_leads, primary_need,
	status, booking_link, follow_up_stage, notes, ai_analysis, priority,
	qualification_score, last_email_sent, created_at, updated_at`

// Repository is the Postgres lead store. Every read goes to the database.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var (
		l      domain.Lead
		status string
	)
	err := row.Scan(
		&l.Email, &l.Name, &l.Phone, &l.FirmName, &l.PracticeArea, &l.MonthlyLeads, &l.PrimaryNeed,
		&status, &l.BookingLink, &l.FollowUpStage, &l.Notes, &l.AIAnalysis, &l.Priority,
		&l.QualificationScore, &l.LastEmailSent, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// Unknown values are preserved; the state machine reports them as having no transitions.
	if parsed, ok := domain.ParseState(status); ok {
		l.Status = parsed
	} else {
		l.Status = domain.State(status)
	}
	return &l, nil
}

// ListLeads returns leads in the given statuses (all leads when none are given), oldest first.
func (r *Repository) ListLeads(ctx context.Context, statuses ...domain.State) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads`
	args := []any{}
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, values)
	}
	query += ` ORDER BY created_at ASC, email ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// GetLead loads one lead by case-insensitive email.
func (r *Repository) GetLead(ctx context.Context, email string) (*domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE email = $1`, domain.NormalizeEmail(email))
	l, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// Create inserts a new lead in NEW_SUBMISSION.
func (r *Repository) Create(ctx context.Context, l domain.Lead) (*domain.Lead, error) {
	status := l.Status
	if status == "" {
		status = domain.StateNewSubmission
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (email, name, phone, firm_name, practice_area, monthly_leads, primary_need, status, booking_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+leadColumns,
		domain.NormalizeEmail(l.Email), l.Name, l.Phone, l.FirmName, l.PracticeArea, l.MonthlyLeads,
		l.PrimaryNeed, string(status), l.BookingLink)
	created, err := scanLead(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return created, nil
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes the lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, email string, status domain.State) error {
	return r.exec(ctx, "set status",
		`UPDATE leads SET status = $2, updated_at = now() WHERE email = $1`,
		domain.NormalizeEmail(email), string(status))
}

// SetField writes one of the whitelisted lead fields.
func (r *Repository) SetField(ctx context.Context, email, field string, value any) error {
	if !domain.IsWritableField(field) {
		return apperr.Validation(fmt.Sprintf("field %q is not writable", field))
	}
	// field is whitelisted above, so formatting it into the statement is safe.
	query := fmt.Sprintf(`UPDATE leads SET %s = $2, updated_at = now() WHERE email = $1`, field)
	return r.exec(ctx, "set "+field, query, domain.NormalizeEmail(email), value)
}

func (r *Repository) stampNote(note string) string {
	return fmt.Sprintf("[%s] %s", r.now().UTC().Format(time.RFC3339), strings.TrimSpace(note))
}

// AppendNote adds a timestamped line to the lead notes.
func (r *Repository) AppendNote(ctx context.Context, email, note string) error {
	return r.exec(ctx, "append note", `
		UPDATE leads
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE email = $1`,
		domain.NormalizeEmail(email), r.stampNote(note))
}

// RecordEmailSent stamps last_email_sent and appends note.
func (r *Repository) RecordEmailSent(ctx context.Context, email, note string) error {
	return r.exec(ctx, "record email sent", `
		UPDATE leads
		SET last_email_sent = $3,
		    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE email = $1`,
		domain.NormalizeEmail(email), r.stampNote(note), r.now().UTC())
}
