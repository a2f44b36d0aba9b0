package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/sentinel"
)

// PostgresStore keeps states durable across restarts. The full record lives
// in a JSONB column; lifecycle, nonce and authorizer id are projected into
// columns for lookups and operational queries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, subject id.SubjectID) (models.VerificationState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM verification_states WHERE subject_id = $1`, string(subject),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VerificationState{}, fmt.Errorf("state %s: %w", subject, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.VerificationState{}, fmt.Errorf("get state: %w", err)
	}
	return unmarshalState(data)
}

func (s *PostgresStore) Put(ctx context.Context, st models.VerificationState) error {
	data, err := marshalState(st)
	if err != nil {
		return err
	}
	var authz sql.NullString
	if a := st.Authorizer(); a != "" {
		authz = sql.NullString{String: string(a), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_states (subject_id, lifecycle, attempt, nonce, authorizer_id, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id) DO UPDATE SET
			lifecycle = EXCLUDED.lifecycle,
			attempt = EXCLUDED.attempt,
			nonce = EXCLUDED.nonce,
			authorizer_id = EXCLUDED.authorizer_id,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, string(st.SubjectID), string(st.Lifecycle), st.Attempt, st.Nonce(), authz, data, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, subject id.SubjectID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_states WHERE subject_id = $1`, string(subject)); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAuthorization(ctx context.Context, authzID id.AuthorizationID) (id.SubjectID, error) {
	var subject string
	err := s.db.QueryRowContext(ctx,
		`SELECT subject_id FROM verification_states WHERE authorizer_id = $1`, string(authzID),
	).Scan(&subject)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("authorization %s: %w", authzID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find authorization: %w", err)
	}
	return id.SubjectID(subject), nil
}

// CountByLifecycle reports how many records sit in each lifecycle.
func (s *PostgresStore) CountByLifecycle(ctx context.Context) (map[models.Lifecycle]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lifecycle, COUNT(*) FROM verification_states GROUP BY lifecycle`)
	if err != nil {
		return nil, fmt.Errorf("count states: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Lifecycle]int)
	for rows.Next() {
		var lc string
		var n int
		if err := rows.Scan(&lc, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[models.Lifecycle(lc)] = n
	}
	return out, rows.Err()
}
