package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewUserService(userRepo *repository.UserRepository, cfg *config.Config) *UserService {
	return &UserService{userRepo: userRepo, cfg: cfg}
}

// Register creates a new user with the default role. Uniqueness is
// pre-checked for friendly errors, but the insert can still hit the
// unique index when two registrations race; that surfaces as ErrConflict.
func (s *UserService) Register(ctx context.Context, in dto.CreateUserInput) (*entity.User, error) {
	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logrus.WithField("email", in.Email).Warn("Register failed: email already registered")
		return nil, ErrEmailTaken
	}

	existing, err = s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logrus.WithField("username", in.Username).Warn("Register failed: username already taken")
		return nil, ErrUsernameTaken
	}

	if err = s.cfg.PasswordPolicy.Validate(in.Password); err != nil {
		return nil, wrapWeakPassword(err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &entity.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: string(hashedPassword),
		Name:         in.Name,
		Role:         entity.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Avatar != "" {
		user.Avatar = sql.NullString{String: in.Avatar, Valid: true}
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		if repository.IsDuplicateEntry(err) {
			logrus.WithField("email", in.Email).Warn("Register failed: uniqueness race at insert")
			return nil, ErrConflict
		}
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// UpdateProfile applies the provided fields to the user. Nil fields are
// left untouched. Email/username changes go through the same conflict
// discipline as registration.
func (s *UserService) UpdateProfile(ctx context.Context, user *entity.User, in dto.UpdateProfileInput) (*entity.User, error) {
	if in.Email != nil && *in.Email != user.Email {
		existing, err := s.userRepo.FindByEmail(ctx, *in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrEmailTaken
		}
		user.Email = *in.Email
	}

	if in.Username != nil && *in.Username != user.Username {
		existing, err := s.userRepo.FindByUsername(ctx, *in.Username)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrUsernameTaken
		}
		user.Username = *in.Username
	}

	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Avatar != nil {
		user.Avatar = sql.NullString{String: *in.Avatar, Valid: *in.Avatar != ""}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if repository.IsDuplicateEntry(err) {
			logrus.WithField("user_id", user.ID).Warn("Profile update failed: uniqueness race at commit")
			return nil, ErrConflict
		}
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("User profile updated")
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Delete removes the user; the schema cascades to both token families.
func (s *UserService) Delete(ctx context.Context, user *entity.User) error {
	if err := s.userRepo.Delete(ctx, user.ID); err != nil {
		return err
	}
	logrus.WithField("user_id", user.ID).Info("User deleted")
	return nil
}

func (s *UserService) List(ctx context.Context, page, size int) (*dto.UserPage, error) {
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.userRepo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	pages := 0
	if total > 0 {
		pages = int(math.Ceil(float64(total) / float64(size)))
	}

	return &dto.UserPage{
		Users: users,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: pages,
	}, nil
}
