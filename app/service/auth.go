package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/token"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type refreshTokenCreator interface {
	Create(ctx context.Context, token *entity.RefreshToken) error
}

// AuthService drives the login/refresh/logout token lifecycle. Rotation
// happens inside a single transaction holding a row lock on the old
// refresh token, so a raw token can be redeemed at most once.
type AuthService struct {
	db          *sql.DB
	userRepo    *repository.UserRepository
	refreshRepo *repository.RefreshTokenRepository
	codec       *token.Codec
	cfg         *config.Config
}

func NewAuthService(
	db *sql.DB,
	userRepo *repository.UserRepository,
	refreshRepo *repository.RefreshTokenRepository,
	codec *token.Codec,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:          db,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		codec:       codec,
		cfg:         cfg,
	}
}

// Login verifies the identifier/password pair and issues a fresh token
// pair. An unknown identifier and a wrong password produce the identical
// error so the response cannot be used to probe for accounts.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta entity.TokenMetadata) (*dto.TokenPair, error) {
	user, err := s.userRepo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		logrus.WithField("identifier", identifier).Warn("Login failed: user not found")
		return nil, ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logrus.WithField("user_id", user.ID).Warn("Login failed: password mismatch")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, s.refreshRepo, user.ID, meta)
	if err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("User logged in")
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// successor is inserted in the same transaction. A replayed token loses
// the race deterministically because the revoke is guarded by the row
// lock taken in FindByHashForUpdate.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, meta entity.TokenMetadata) (*dto.TokenPair, error) {
	// Reject garbage input locally before touching storage.
	if _, err := s.codec.VerifyRefresh(rawRefresh); err != nil {
		return nil, ErrInvalidToken
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRefreshRepo := s.refreshRepo.WithTx(tx)

	tokenHash := token.Hash(rawRefresh)
	stored, err := txRefreshRepo.FindByHashForUpdate(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		logrus.Warn("Refresh failed: token not found")
		return nil, ErrInvalidToken
	}
	if stored.Revoked {
		logrus.WithField("user_id", stored.UserID).Warn("Refresh failed: token already revoked")
		return nil, ErrInvalidToken
	}
	if isExpired(stored.ExpiresAt, time.Now()) {
		logrus.WithField("user_id", stored.UserID).Warn("Refresh failed: token expired")
		return nil, ErrInvalidToken
	}

	transitioned, err := txRefreshRepo.Revoke(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Lost a concurrent rotation on the same token.
		return nil, ErrInvalidToken
	}

	pair, err := s.issuePair(ctx, txRefreshRepo, stored.UserID, meta)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", stored.UserID).Info("Refresh token rotated")
	return pair, nil
}

// Logout revokes the presented refresh token. Revoking a token that is
// already dead or unknown is an error, not a silent success.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	transitioned, err := s.refreshRepo.Revoke(ctx, token.Hash(rawRefresh))
	if err != nil {
		return err
	}
	if !transitioned {
		logrus.Warn("Logout failed: token absent or already revoked")
		return ErrInvalidToken
	}

	logrus.Info("User logged out, refresh token revoked")
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, repo refreshTokenCreator, userID string, meta entity.TokenMetadata) (*dto.TokenPair, error) {
	accessToken, err := s.codec.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	rawRefresh, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &entity.RefreshToken{
		ID:            uuid.NewString(),
		UserID:        userID,
		TokenHash:     token.Hash(rawRefresh),
		ExpiresAt:     now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:     now,
		TokenMetadata: meta,
	}

	if err = repo.Create(ctx, record); err != nil {
		return nil, err
	}

	return &dto.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		TokenType:    "bearer",
	}, nil
}

// isExpired treats the boundary instant as expired: now >= expiresAt.
func isExpired(expiresAt, now time.Time) bool {
	return !now.UTC().Before(expiresAt.UTC())
}
