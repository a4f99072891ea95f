package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email/username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrConflict           = errors.New("email or username already taken")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
)

func wrapWeakPassword(err error) error {
	return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
}
