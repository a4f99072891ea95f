package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/dto"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

const (
	selectUserByUsernameQuery = `(?s)SELECT id, email, username, password_hash, name, avatar, role, created_at, updated_at FROM users WHERE username = \?`
	insertUserQuery           = `(?s)INSERT INTO users`
	countUsersQuery           = `(?s)SELECT COUNT\(\*\) FROM users`
	listUsersQuery            = `(?s)SELECT id, email, username, password_hash, name, avatar, role, created_at, updated_at FROM users ORDER BY created_at, id LIMIT \? OFFSET \?`
)

func newUserService(t *testing.T) (*service.UserService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return service.NewUserService(repository.NewUserRepository(db), testConfig()), mock, func() { db.Close() }
}

func registerInput() dto.CreateUserInput {
	return dto.CreateUserInput{
		Email:    "alice@x.com",
		Username: "alice",
		Name:     "Alice",
		Password: "Password1",
	}
}

func TestRegisterCreatesUser(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByEmailQuery).WithArgs("alice@x.com").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(selectUserByUsernameQuery).WithArgs("alice").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected a generated user id")
	}
	if user.Role != entity.RoleUser {
		t.Fatalf("expected default role user, got %q", user.Role)
	}
	if user.PasswordHash == "Password1" {
		t.Fatal("password must not be stored in the clear")
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Password1")); err != nil {
		t.Fatalf("stored hash does not verify the password: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterRejectsTakenEmail(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByEmailQuery).WithArgs("alice@x.com").WillReturnRows(userRow(t, "Password1"))

	if _, err := svc.Register(context.Background(), registerInput()); !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByEmailQuery).WithArgs("alice@x.com").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(selectUserByUsernameQuery).WithArgs("alice").WillReturnRows(userRow(t, "Password1"))

	if _, err := svc.Register(context.Background(), registerInput()); !errors.Is(err, service.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByEmailQuery).WithArgs("alice@x.com").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(selectUserByUsernameQuery).WithArgs("alice").WillReturnRows(sqlmock.NewRows(userColumns))

	in := registerInput()
	in.Password = "alllowercase"

	if _, err := svc.Register(context.Background(), in); !errors.Is(err, service.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterMapsUniquenessRaceToConflict(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	// The pre-checks pass but the insert hits the unique index because a
	// concurrent registration committed first.
	mock.ExpectQuery(selectUserByEmailQuery).WithArgs("alice@x.com").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(selectUserByUsernameQuery).WithArgs("alice").WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	if _, err := svc.Register(context.Background(), registerInput()); !errors.Is(err, service.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	now := time.Now().UTC()
	current := &entity.User{ID: "user-id", Email: "alice@x.com", Username: "alice", CreatedAt: now, UpdatedAt: now}

	taken := "bob@x.com"
	bobRow := sqlmock.NewRows(userColumns).
		AddRow("bob-id", taken, "bob", "hash", "Bob", nil, "user", now, now)
	mock.ExpectQuery(selectUserByEmailQuery).WithArgs(taken).WillReturnRows(bobRow)

	_, err := svc.UpdateProfile(context.Background(), current, dto.UpdateProfileInput{Email: &taken})
	if !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdateProfileAppliesProvidedFields(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	now := time.Now().UTC()
	current := &entity.User{ID: "user-id", Email: "alice@x.com", Username: "alice", Name: "Alice", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(updateUserQuery).WillReturnResult(sqlmock.NewResult(0, 1))

	name := "Alice Cooper"
	updated, err := svc.UpdateProfile(context.Background(), current, dto.UpdateProfileInput{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Alice Cooper" {
		t.Fatalf("expected name to change, got %q", updated.Name)
	}
	if updated.Email != "alice@x.com" {
		t.Fatalf("untouched fields must survive, got email %q", updated.Email)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUnknownUser(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	mock.ExpectQuery(selectUserByIDQuery).WithArgs("ghost-id").WillReturnRows(sqlmock.NewRows(userColumns))

	if _, err := svc.Get(context.Background(), "ghost-id"); !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	svc, mock, cleanup := newUserService(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(countUsersQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	rows := sqlmock.NewRows(userColumns).
		AddRow("id-1", "a@x.com", "a", "hash", "A", nil, "user", now, now).
		AddRow("id-2", "b@x.com", "b", "hash", "B", nil, "user", now, now)
	mock.ExpectQuery(listUsersQuery).WithArgs(20, 20).WillReturnRows(rows)

	page, err := svc.List(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(page.Users))
	}
	if page.Total != 41 || page.Page != 2 || page.Size != 20 {
		t.Fatalf("unexpected page metadata: %+v", page)
	}
	if page.Pages != 3 {
		t.Fatalf("expected 3 pages for 41 users of size 20, got %d", page.Pages)
	}
}
