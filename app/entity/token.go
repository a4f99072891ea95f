package entity

import (
	"database/sql"
	"time"
)

// TokenMetadata carries optional audit fields attached to persisted tokens.
// Zero value is valid; absence of metadata is not an error.
type TokenMetadata struct {
	IPAddress sql.NullString
	UserAgent sql.NullString
}

// RefreshToken is a ledger row. TokenHash is the sha256 of the raw token;
// the raw value is handed to the client once and never stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
	TokenMetadata
}

type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
	TokenMetadata
}
