package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// sqlStore implements Store on database/sql. Queries use $n placeholders,
// which both pgx/stdlib and modernc.org/sqlite accept.
type sqlStore struct {
	db      *sql.DB
	now     func() time.Time
	closeDB bool
}

func newSQLStore(db *sql.DB, closeDB bool, opts ...Option) *sqlStore {
	s := &sqlStore{db: db, now: time.Now, closeDB: closeDB}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sqlStore) clock() time.Time {
	return s.now().UTC()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func encodeMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{"raw": raw}
	}
	return m
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecordAction appends rec. A zero Timestamp is replaced with the store clock.
func (s *sqlStore) RecordAction(ctx context.Context, rec ActionRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.clock()
	}
	details, err := encodeMap(rec.Details)
	if err != nil {
		return fmt.Errorf("encode action details: %w", err)
	}
	result, err := encodeMap(rec.Result)
	if err != nil {
		return fmt.Errorf("encode action result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (lead_email, action_type, details, result, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		normalizeEmail(rec.LeadEmail), rec.ActionType, details, result, rec.Success, toMillis(ts))
	if err != nil {
		return fmt.Errorf("record action %s: %w", rec.ActionType, err)
	}
	return nil
}

// WasActionTaken reports whether a successful actionType record exists for the lead
// at or after now-window.
func (s *sqlStore) WasActionTaken(ctx context.Context, leadEmail, actionType string, window time.Duration) (bool, error) {
	since := toMillis(s.clock().Add(-window))
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM actions
			WHERE lead_email = $1 AND action_type = $2 AND success = $3 AND created_at >= $4
		)`,
		normalizeEmail(leadEmail), actionType, true, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check action %s: %w", actionType, err)
	}
	return exists, nil
}

// RecentActions returns records newest first. Empty filters match everything.
func (s *sqlStore) RecentActions(ctx context.Context, leadEmail, actionType string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT lead_email, action_type, details, result, success, created_at
		FROM actions
		WHERE ($1 = '' OR lead_email = $1) AND ($2 = '' OR action_type = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		normalizeEmail(leadEmail), actionType, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var (
			rec             ActionRecord
			details, result string
			createdAt       int64
		)
		if err := rows.Scan(&rec.LeadEmail, &rec.ActionType, &details, &result, &rec.Success, &createdAt); err != nil {
			return nil, err
		}
		rec.Details = decodeMap(details)
		rec.Result = decodeMap(result)
		rec.Timestamp = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendMessage adds msg to the lead's log. No deduplication is performed.
func (s *sqlStore) AppendMessage(ctx context.Context, leadEmail string, msg Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.clock()
	}
	meta, err := encodeMap(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (lead_email, role, content, message_id, subject, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		normalizeEmail(leadEmail), string(msg.Role), msg.Content, msg.MessageID, msg.Subject, meta, toMillis(ts))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages in chronological order.
func (s *sqlStore) RecentMessages(ctx context.Context, leadEmail string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, message_id, subject, metadata, created_at
		FROM conversations
		WHERE lead_email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		normalizeEmail(leadEmail), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg       Message
			role      string
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&role, &msg.Content, &msg.MessageID, &msg.Subject, &meta, &createdAt); err != nil {
			return nil, err
		}
		msg.Role = Role(role)
		msg.Metadata = decodeMap(meta)
		msg.Timestamp = fromMillis(createdAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ConversationText renders recent messages as "ROLE (timestamp): content" lines.
func (s *sqlStore) ConversationText(ctx context.Context, leadEmail string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	msgs, err := s.RecentMessages(ctx, leadEmail, limit)
	if err != nil {
		return "", err
	}
	return FormatTranscript(msgs), nil
}

// FormatTranscript renders msgs in the transcript format used for decision context.
func FormatTranscript(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s (%s): %s",
			strings.ToUpper(string(m.Role)), m.Timestamp.UTC().Format(time.RFC3339), m.Content))
	}
	return strings.Join(lines, "\n\n")
}

// CountMessages returns the size of the lead's conversation log.
func (s *sqlStore) CountMessages(ctx context.Context, leadEmail string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE lead_email = $1`, normalizeEmail(leadEmail)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// SaveAnalysis upserts the cached analysis for a lead.
func (s *sqlStore) SaveAnalysis(ctx context.Context, a Analysis) error {
	payload, err := encodeMap(a.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	var score sql.NullFloat64
	if a.QualificationScore != nil {
		score = sql.NullFloat64{Float64: *a.QualificationScore, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lead_analysis (lead_email, analysis, priority, qualification_score, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_email) DO UPDATE SET
			analysis = excluded.analysis,
			priority = excluded.priority,
			qualification_score = COALESCE(excluded.qualification_score, lead_analysis.qualification_score),
			updated_at = excluded.updated_at`,
		normalizeEmail(a.LeadEmail), payload, a.Priority, score, toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the cached analysis or nil.
func (s *sqlStore) GetAnalysis(ctx context.Context, leadEmail string) (*Analysis, error) {
	var (
		a         Analysis
		payload   string
		score     sql.NullFloat64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT lead_email, analysis, priority, qualification_score, updated_at
		FROM lead_analysis WHERE lead_email = $1`,
		normalizeEmail(leadEmail)).Scan(&a.LeadEmail, &payload, &a.Priority, &score, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	a.Analysis = decodeMap(payload)
	if score.Valid {
		v := score.Float64
		a.QualificationScore = &v
	}
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// SetState upserts a processing state value.
func (s *sqlStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// GetState reads a processing state value.
func (s *sqlStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM processing_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// Close releases the underlying handle.
func (s *sqlStore) Close() error {
	if !s.closeDB {
		return nil
	}
	return s.db.Close()
}
