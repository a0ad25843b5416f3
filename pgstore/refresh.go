package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, session_id, user_id, token_hash, previous_hash, retired_hashes, expires_at, rotated_at, grace_used, revoked_at`

// RefreshLedger stores one refresh chain per session in
// authcore_refresh_tokens.
type RefreshLedger struct {
	db *pgxpool.Pool
}

var _ refresh.Ledger = (*RefreshLedger)(nil)

func NewRefreshLedger(db *pgxpool.Pool) *RefreshLedger {
	return &RefreshLedger{db: db}
}

func (l *RefreshLedger) Issue(ctx context.Context, t *refresh.Token) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO authcore_refresh_tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tokenArgs(t)...,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Redeem locks the row, classifies presented and writes the transition in
// one transaction. Concurrent redeemers of the same chain queue on the lock
// and see the winner's state.
func (l *RefreshLedger) Redeem(
	ctx context.Context,
	id string,
	presented, next [32]byte,
	now time.Time,
	grace time.Duration,
) (refresh.Outcome, *refresh.Token, error) {
	var (
		outcome refresh.Outcome
		record  *refresh.Token
	)

	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		t, err := scanToken(tx.QueryRow(ctx,
			`SELECT `+tokenColumns+` FROM authcore_refresh_tokens WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		outcome = refresh.Decide(t, presented, now, grace)
		record = t
		if !refresh.Apply(t, outcome, next, now) {
			return nil
		}
		return updateToken(ctx, tx, t)
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return refresh.OutcomeUnknown, nil, refresh.ErrTokenNotFound
		case errors.Is(err, refresh.ErrCorruptRecord):
			return refresh.OutcomeUnknown, nil, err
		default:
			return refresh.OutcomeUnknown, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return outcome, record, nil
}

func (l *RefreshLedger) FindByID(ctx context.Context, id string) (*refresh.Token, error) {
	return l.find(ctx, `SELECT `+tokenColumns+` FROM authcore_refresh_tokens WHERE id = $1`, id)
}

func (l *RefreshLedger) FindBySession(ctx context.Context, sessionID string) (*refresh.Token, error) {
	return l.find(ctx, `SELECT `+tokenColumns+` FROM authcore_refresh_tokens WHERE session_id = $1`, sessionID)
}

func (l *RefreshLedger) find(ctx context.Context, query, arg string) (*refresh.Token, error) {
	t, err := scanToken(l.db.QueryRow(ctx, query, arg))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, refresh.ErrTokenNotFound
		case errors.Is(err, refresh.ErrCorruptRecord):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return t, nil
}

// RevokeSession revokes the chain bound to sessionID. A missing chain is
// not an error.
func (l *RefreshLedger) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	_, err := l.db.Exec(ctx,
		`UPDATE authcore_refresh_tokens SET revoked_at = $2 WHERE session_id = $1 AND revoked_at IS NULL`,
		sessionID, now,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeUser revokes every live chain of userID and returns how many
// changed.
func (l *RefreshLedger) RevokeUser(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := l.db.Exec(ctx,
		`UPDATE authcore_refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeExpired deletes chains that ended more than retention ago.
func (l *RefreshLedger) PurgeExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	tag, err := l.db.Exec(ctx,
		`DELETE FROM authcore_refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func updateToken(ctx context.Context, tx pgx.Tx, t *refresh.Token) error {
	_, err := tx.Exec(ctx,
		`UPDATE authcore_refresh_tokens SET
		     token_hash     = $2,
		     previous_hash  = $3,
		     retired_hashes = $4,
		     rotated_at     = $5,
		     grace_used     = $6,
		     revoked_at     = $7
		 WHERE id = $1`,
		t.ID, t.TokenHash[:], hashOrNil(t.PreviousHash), retiredSlices(t.RetiredHashes),
		nullTime(t.RotatedAt), t.GraceUsed, nullTime(t.RevokedAt),
	)
	return err
}

func tokenArgs(t *refresh.Token) []any {
	return []any{
		t.ID,
		t.SessionID,
		t.UserID,
		t.TokenHash[:],
		hashOrNil(t.PreviousHash),
		retiredSlices(t.RetiredHashes),
		t.ExpiresAt,
		nullTime(t.RotatedAt),
		t.GraceUsed,
		nullTime(t.RevokedAt),
	}
}

func scanToken(row pgx.Row) (*refresh.Token, error) {
	var (
		t         refresh.Token
		current   []byte
		previous  []byte
		retired   [][]byte
		rotatedAt *time.Time
		revokedAt *time.Time
	)
	if err := row.Scan(
		&t.ID, &t.SessionID, &t.UserID,
		&current, &previous, &retired,
		&t.ExpiresAt, &rotatedAt, &t.GraceUsed, &revokedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if t.TokenHash, err = toHash(current); err != nil {
		return nil, err
	}
	if len(previous) > 0 {
		if t.PreviousHash, err = toHash(previous); err != nil {
			return nil, err
		}
	}
	for _, h := range retired {
		fixed, err := toHash(h)
		if err != nil {
			return nil, err
		}
		t.RetiredHashes = append(t.RetiredHashes, fixed)
	}
	t.RotatedAt = fromNullTime(rotatedAt)
	t.RevokedAt = fromNullTime(revokedAt)
	return &t, nil
}

func toHash(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) != len(out) {
		return out, fmt.Errorf("%w: hash is %d bytes", refresh.ErrCorruptRecord, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hashOrNil(h [32]byte) []byte {
	if h == ([32]byte{}) {
		return nil
	}
	return h[:]
}

func retiredSlices(hashes [][32]byte) [][]byte {
	out := make([][]byte, len(hashes))
	for i := range hashes {
		out[i] = hashes[i][:]
	}
	return out
}
