package entity

import (
	"database/sql"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Name         string
	Avatar       sql.NullString
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
