package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, created_at, revoked, ip_address, user_agent`

type RefreshTokenRepository struct {
	db DBTX
}

func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) WithTx(tx *sql.Tx) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: tx}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
		token.Revoked,
		token.IPAddress,
		token.UserAgent,
	)
	return err
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = ?`
	return r.findOne(ctx, query, tokenHash)
}

// FindByHashForUpdate locks the row for the duration of the surrounding
// transaction. Concurrent refresh attempts on the same token serialize
// here; exactly one proceeds, the rest observe the revoked row.
func (r *RefreshTokenRepository) FindByHashForUpdate(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = ? FOR UPDATE`
	return r.findOne(ctx, query, tokenHash)
}

// Revoke marks the token revoked and reports whether this call performed
// the transition. Already-revoked or absent rows return false, which is
// how callers detect an already-used token.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ? AND revoked = 0`
	result, err := r.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	query := `UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteExpiredAndRevoked removes terminal rows and returns the count for
// observability. Rows are terminal, so this never races with rotation.
func (r *RefreshTokenRepository) DeleteExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= ? OR revoked = 1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	token := &entity.RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.Revoked,
		&token.IPAddress,
		&token.UserAgent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}
