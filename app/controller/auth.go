package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const resetRequestedMessage = "if the email exists, a password reset link has been sent"

type authFlow interface {
	Login(ctx context.Context, identifier, password string, meta entity.TokenMetadata) (*dto.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string, meta entity.TokenMetadata) (*dto.TokenPair, error)
	Logout(ctx context.Context, rawRefresh string) error
}

type resetFlow interface {
	RequestReset(ctx context.Context, email string, meta entity.TokenMetadata) (string, error)
	ConfirmReset(ctx context.Context, rawToken, newPassword string) error
}

type AuthController struct {
	authService  authFlow
	resetService resetFlow
}

func NewAuthController(authService authFlow, resetService resetFlow) *AuthController {
	return &AuthController{authService: authService, resetService: resetService}
}

func (c *AuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.authService.Login(ctx.Request().Context(), req.Identifier, req.Password, requestMetadata(ctx))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: service.ErrInvalidCredentials.Error()})
		}
		logrus.WithError(err).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, pair)
}

func (c *AuthController) Refresh(ctx echo.Context) error {
	req, err := types.NewRefreshRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Refresh validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, requestMetadata(ctx))
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		logrus.WithError(err).Error("Refresh failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, pair)
}

func (c *AuthController) Logout(ctx echo.Context) error {
	req, err := types.NewLogoutRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind logout request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Logout validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	if err = c.authService.Logout(ctx.Request().Context(), req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or already revoked token"})
		}
		logrus.WithError(err).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.NoContent(http.StatusNoContent)
}

// RequestPasswordReset always answers with the same message so the
// response cannot be used to enumerate registered emails. The raw token
// is handed to the delivery collaborator, never to the HTTP client.
func (c *AuthController) RequestPasswordReset(ctx echo.Context) error {
	req, err := types.NewRequestPasswordResetRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Password reset request validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	if _, err = c.resetService.RequestReset(ctx.Request().Context(), req.Email, requestMetadata(ctx)); err != nil {
		logrus.WithError(err).Error("Request password reset failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: resetRequestedMessage})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Reset password validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	if err = c.resetService.ConfirmReset(ctx.Request().Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: service.ErrResetTokenInvalid.Error()})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).Error("Reset password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "password reset successfully"})
}

func requestMetadata(ctx echo.Context) entity.TokenMetadata {
	meta := entity.TokenMetadata{}
	if ip := ctx.RealIP(); ip != "" {
		meta.IPAddress.String = ip
		meta.IPAddress.Valid = true
	}
	if ua := ctx.Request().UserAgent(); ua != "" {
		meta.UserAgent.String = ua
		meta.UserAgent.Valid = true
	}
	return meta
}
