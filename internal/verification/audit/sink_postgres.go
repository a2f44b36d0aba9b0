package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSink writes records to the audit_events table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, subject_id, action, lifecycle, attempt, reason, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.SubjectID, string(r.Action), r.To, r.Attempt, r.Reason, r.Detail, r.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListBySubject returns the subject's records, oldest first. From is not
// stored and comes back empty.
func (s *PostgresSink) ListBySubject(ctx context.Context, subject string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, action, lifecycle, attempt, reason, detail, occurred_at
		FROM audit_events WHERE subject_id = $1 ORDER BY occurred_at, id
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var action string
		if err := rows.Scan(&r.ID, &r.SubjectID, &action, &r.To, &r.Attempt, &r.Reason, &r.Detail, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Action = Action(action)
		out = append(out, r)
	}
	return out, rows.Err()
}
