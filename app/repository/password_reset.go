package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
)

const resetTokenColumns = `id, user_id, token_hash, expires_at, created_at, used, ip_address, user_agent`

type PasswordResetRepository struct {
	db DBTX
}

func NewPasswordResetRepository(db DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) WithTx(tx *sql.Tx) *PasswordResetRepository {
	return &PasswordResetRepository{db: tx}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *entity.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at, used, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
		token.Used,
		token.IPAddress,
		token.UserAgent,
	)
	return err
}

func (r *PasswordResetRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_hash = ?`
	row := r.db.QueryRowContext(ctx, query, tokenHash)
	token := &entity.PasswordResetToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.Used,
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

func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used = 1 WHERE id = ?`, id)
	return err
}

// MarkAllUsedForUser invalidates every live reset token for the user so
// only the most recently issued one can succeed.
func (r *PasswordResetRepository) MarkAllUsedForUser(ctx context.Context, userID string) error {
	query := `UPDATE password_reset_tokens SET used = 1 WHERE user_id = ? AND used = 0`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *PasswordResetRepository) DeleteExpiredAndUsed(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at <= ? OR used = 1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
