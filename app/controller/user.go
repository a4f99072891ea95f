package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type userManager interface {
	Register(ctx context.Context, in dto.CreateUserInput) (*entity.User, error)
	UpdateProfile(ctx context.Context, user *entity.User, in dto.UpdateProfileInput) (*entity.User, error)
	Get(ctx context.Context, id string) (*entity.User, error)
	Delete(ctx context.Context, user *entity.User) error
	List(ctx context.Context, page, size int) (*dto.UserPage, error)
}

type UserController struct {
	userService userManager
}

func NewUserController(userService userManager) *UserController {
	return &UserController{userService: userService}
}

func (c *UserController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	user, err := c.userService.Register(ctx.Request().Context(), dto.CreateUserInput{
		Email:    req.Email,
		Username: req.Username,
		Name:     req.Name,
		Avatar:   req.Avatar,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken),
			errors.Is(err, service.ErrUsernameTaken),
			errors.Is(err, service.ErrConflict):
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrWeakPassword):
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusCreated, dto.NewUserResponse(user))
}

func (c *UserController) Me(ctx echo.Context) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	return ctx.JSON(http.StatusOK, dto.NewUserResponse(user))
}

func (c *UserController) UpdateMe(ctx echo.Context) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	req, err := types.NewUpdateProfileRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind profile update request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("user_id", user.ID).Debug("Profile update validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	updated, err := c.userService.UpdateProfile(ctx.Request().Context(), user, dto.UpdateProfileInput{
		Email:    req.Email,
		Username: req.Username,
		Name:     req.Name,
		Avatar:   req.Avatar,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken),
			errors.Is(err, service.ErrUsernameTaken),
			errors.Is(err, service.ErrConflict):
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("user_id", user.ID).Error("Profile update failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.NewUserResponse(updated))
}

func (c *UserController) DeleteMe(ctx echo.Context) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	if err = c.userService.Delete(ctx.Request().Context(), user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Delete user failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *UserController) List(ctx echo.Context) error {
	page := queryInt(ctx, "page", 1)
	size := queryInt(ctx, "size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	result, err := c.userService.List(ctx.Request().Context(), page, size)
	if err != nil {
		logrus.WithError(err).Error("List users failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, dto.NewUserPageResponse(result))
}

// currentUser resolves the subject placed in the context by the auth
// middleware. A token whose user vanished is treated as unauthorized.
func (c *UserController) currentUser(ctx echo.Context) (*entity.User, error) {
	userID, ok := ctx.Get("user_id").(string)
	if !ok || userID == "" {
		logrus.Warn("Missing user_id in request context")
		return nil, service.ErrUserNotFound
	}

	user, err := c.userService.Get(ctx.Request().Context(), userID)
	if err != nil {
		if !errors.Is(err, service.ErrUserNotFound) {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to load current user")
		}
		return nil, err
	}

	return user, nil
}

func queryInt(ctx echo.Context, name string, defaultValue int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
