package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/token"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// PasswordResetService drives the request/confirm reset flow. Callers at
// the boundary must report uniform success on RequestReset regardless of
// the return value; the empty-token case exists only so the delivery
// collaborator knows there is nothing to send.
type PasswordResetService struct {
	userRepo    *repository.UserRepository
	resetRepo   *repository.PasswordResetRepository
	refreshRepo *repository.RefreshTokenRepository
	cfg         *config.Config
}

func NewPasswordResetService(
	userRepo *repository.UserRepository,
	resetRepo *repository.PasswordResetRepository,
	refreshRepo *repository.RefreshTokenRepository,
	cfg *config.Config,
) *PasswordResetService {
	return &PasswordResetService{
		userRepo:    userRepo,
		resetRepo:   resetRepo,
		refreshRepo: refreshRepo,
		cfg:         cfg,
	}
}

// RequestReset generates a reset token for the given email. Returns the
// raw token when the user exists and "" otherwise. Issuing a new token
// invalidates every prior live token for the user.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, meta entity.TokenMetadata) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		logrus.Info("Password reset requested for unknown email")
		return "", nil
	}

	if err = s.resetRepo.MarkAllUsedForUser(ctx, user.ID); err != nil {
		return "", err
	}

	rawToken, err := token.NewResetToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	record := &entity.PasswordResetToken{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		TokenHash:     token.Hash(rawToken),
		ExpiresAt:     now.Add(s.cfg.ResetTokenTTL),
		CreatedAt:     now,
		TokenMetadata: meta,
	}

	if err = s.resetRepo.Create(ctx, record); err != nil {
		return "", err
	}

	logrus.WithField("user_id", user.ID).Info("Password reset token generated")
	return rawToken, nil
}

// ConfirmReset validates the raw token, sets the new password, consumes
// the token and revokes every outstanding refresh token so all sessions
// must log in again. Absent, used and expired tokens all produce the
// same opaque error.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, rawToken, newPassword string) error {
	stored, err := s.resetRepo.FindByHash(ctx, token.Hash(rawToken))
	if err != nil {
		return err
	}
	if stored == nil {
		logrus.Warn("Password reset attempted with unknown token")
		return ErrResetTokenInvalid
	}
	if stored.Used {
		logrus.WithField("user_id", stored.UserID).Warn("Password reset attempted with used token")
		return ErrResetTokenInvalid
	}
	if isExpired(stored.ExpiresAt, time.Now()) {
		logrus.WithField("user_id", stored.UserID).Warn("Password reset attempted with expired token")
		return ErrResetTokenInvalid
	}

	if err = s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return wrapWeakPassword(err)
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		logrus.WithField("user_id", stored.UserID).Error("Reset token references missing user")
		return ErrUserNotFound
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.PasswordHash = string(hashedPassword)
	if err = s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if err = s.resetRepo.MarkUsed(ctx, stored.ID); err != nil {
		return err
	}

	if err = s.refreshRepo.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	logrus.WithField("user_id", user.ID).Info("Password reset successful, all sessions revoked")
	return nil
}
