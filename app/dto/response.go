package dto

import "github.com/vibast-solutions/ms-go-identity/app/entity"

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role"`
}

func NewUserResponse(user *entity.User) UserResponse {
	resp := UserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}
	if user.Avatar.Valid {
		resp.Avatar = user.Avatar.String
	}
	return resp
}

type UserPageResponse struct {
	Items []UserResponse `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Pages int            `json:"pages"`
}

func NewUserPageResponse(page *UserPage) UserPageResponse {
	items := make([]UserResponse, 0, len(page.Users))
	for _, user := range page.Users {
		items = append(items, NewUserResponse(user))
	}
	return UserPageResponse{
		Items: items,
		Total: page.Total,
		Page:  page.Page,
		Size:  page.Size,
		Pages: page.Pages,
	}
}
