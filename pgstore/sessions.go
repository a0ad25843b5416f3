package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, ip_address, user_agent, created_at, expires_at, remember_me, revoked_at`

// SessionRepository stores sessions in authcore_sessions.
type SessionRepository struct {
	db *pgxpool.Pool
}

var _ session.Repository = (*SessionRepository)(nil)

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO authcore_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     expires_at  = EXCLUDED.expires_at,
		     remember_me = EXCLUDED.remember_me,
		     revoked_at  = COALESCE(authcore_sessions.revoked_at, EXCLUDED.revoked_at)`,
		s.ID, s.UserID, s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt, s.RememberMe, nullTime(s.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM authcore_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

// FindByUserID returns every stored session of userID, oldest first.
func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM authcore_sessions WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrSessionCorrupt, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Revoke sets revoked_at once. An already revoked row reports false.
func (r *SessionRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE authcore_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM authcore_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		return false, session.ErrSessionNotFound
	}
	return false, nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, exceptID string, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE authcore_sessions SET revoked_at = $3
		 WHERE user_id = $1 AND id <> $2 AND revoked_at IS NULL
		 RETURNING id`,
		userID, exceptID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// PurgeExpired deletes sessions that ended more than retention ago.
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	tag, err := r.db.Exec(ctx,
		`DELETE FROM authcore_sessions WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		s         session.Session
		revokedAt *time.Time
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.RememberMe, &revokedAt,
	); err != nil {
		return nil, err
	}
	s.RevokedAt = fromNullTime(revokedAt)
	return &s, nil
}
