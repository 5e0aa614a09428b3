package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists verification tokens and refresh credentials. Every
// operation touches a single row or a single keyed set of rows; nothing spans
// a transaction.
type Repository interface {
	CreateToken(ctx context.Context, token VerificationToken) error
	// ConsumeToken marks a matching, unexpired, unused token as used in one
	// conditional write and returns it. A miss yields ErrTokenInvalid.
	ConsumeToken(ctx context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error)
	FindActiveToken(ctx context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error)

	CreateRefresh(ctx context.Context, cred RefreshCredential) error
	FindActiveRefresh(ctx context.Context, hash, userID string, now time.Time) (RefreshCredential, error)
	// RevokeRefresh reports whether this call performed the revocation.
	RevokeRefresh(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeRefreshByHash(ctx context.Context, hash, userID string, at time.Time) (bool, error)
	RevokeAllRefresh(ctx context.Context, userID string, at time.Time) (int, error)

	DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed verification repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateToken inserts a verification token row.
func (r *PostgresRepository) CreateToken(ctx context.Context, t VerificationToken) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO verification_tokens (id, token_hash, phone_number, session_id, is_new_user, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, t.TokenHash, t.Phone, t.SessionID, t.IsNewUser, t.ExpiresAt.UTC(), t.IssuedAt.UTC())
	return err
}

// ConsumeToken spends a token with a single conditional UPDATE so concurrent
// confirmations cannot both succeed.
func (r *PostgresRepository) ConsumeToken(ctx context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error) {
	row := r.db.QueryRow(ctx, `UPDATE verification_tokens SET used_at = $1
        WHERE token_hash = $2 AND phone_number = $3 AND session_id = $4 AND expires_at > $1 AND used_at IS NULL
        RETURNING id, token_hash, phone_number, session_id, is_new_user, created_at, expires_at, used_at`,
		now.UTC(), hash, phone, sessionID)
	return scanToken(row)
}

// FindActiveToken looks a token up with the same predicate as ConsumeToken
// without spending it.
func (r *PostgresRepository) FindActiveToken(ctx context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error) {
	row := r.db.QueryRow(ctx, `SELECT id, token_hash, phone_number, session_id, is_new_user, created_at, expires_at, used_at
        FROM verification_tokens
        WHERE token_hash = $1 AND phone_number = $2 AND session_id = $3 AND expires_at > $4 AND used_at IS NULL`,
		hash, phone, sessionID, now.UTC())
	return scanToken(row)
}

// CreateRefresh inserts a refresh credential row.
func (r *PostgresRepository) CreateRefresh(ctx context.Context, c RefreshCredential) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, userID, c.TokenHash, c.ExpiresAt.UTC(), c.IssuedAt.UTC())
	return err
}

// FindActiveRefresh returns an unexpired, unrevoked credential owned by userID.
func (r *PostgresRepository) FindActiveRefresh(ctx context.Context, hash, userID string, now time.Time) (RefreshCredential, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return RefreshCredential{}, ErrRefreshInvalid
	}
	row := r.db.QueryRow(ctx, `SELECT id, user_id, token_hash, created_at, expires_at, revoked_at
        FROM refresh_tokens
        WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3 AND revoked_at IS NULL`, hash, uid, now.UTC())

	var (
		id, owner uuid.UUID
		cred      RefreshCredential
	)
	if err := row.Scan(&id, &owner, &cred.TokenHash, &cred.IssuedAt, &cred.ExpiresAt, &cred.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshCredential{}, ErrRefreshInvalid
		}
		return RefreshCredential{}, err
	}
	cred.ID = id.String()
	cred.UserID = owner.String()
	return cred, nil
}

// RevokeRefresh sets revoked_at on a live credential.
func (r *PostgresRepository) RevokeRefresh(ctx context.Context, id string, at time.Time) (bool, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	cmd, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at.UTC(), rid)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// RevokeRefreshByHash revokes the credential with the given hash when it
// belongs to userID.
func (r *PostgresRepository) RevokeRefreshByHash(ctx context.Context, hash, userID string, at time.Time) (bool, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false, nil
	}
	cmd, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $1
        WHERE token_hash = $2 AND user_id = $3 AND revoked_at IS NULL`, at.UTC(), hash, uid)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// RevokeAllRefresh revokes every live credential of userID.
func (r *PostgresRepository) RevokeAllRefresh(ctx context.Context, userID string, at time.Time) (int, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, nil
	}
	cmd, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`, at.UTC(), uid)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

// DeleteExpired hard-deletes rows of both kinds whose expiry has passed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	tokens, err := r.db.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep verification tokens: %w", err)
	}
	refresh, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return SweepResult{VerificationTokens: int(tokens.RowsAffected())}, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	return SweepResult{VerificationTokens: int(tokens.RowsAffected()), RefreshCredentials: int(refresh.RowsAffected())}, nil
}

func scanToken(row pgx.Row) (VerificationToken, error) {
	var (
		id uuid.UUID
		t  VerificationToken
	)
	if err := row.Scan(&id, &t.TokenHash, &t.Phone, &t.SessionID, &t.IsNewUser, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationToken{}, ErrTokenInvalid
		}
		return VerificationToken{}, err
	}
	t.ID = id.String()
	return t, nil
}
