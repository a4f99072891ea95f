package dto

import "github.com/vibast-solutions/ms-go-identity/app/entity"

// TokenPair is the result of login and refresh. RefreshToken is the raw
// value; its hash is what the ledger stores.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type CreateUserInput struct {
	Email    string
	Username string
	Name     string
	Avatar   string
	Password string
}

// UpdateProfileInput carries a partial update; nil fields are untouched.
type UpdateProfileInput struct {
	Email    *string
	Username *string
	Name     *string
	Avatar   *string
}

type UserPage struct {
	Users []*entity.User
	Total int64
	Page  int
	Size  int
	Pages int
}
