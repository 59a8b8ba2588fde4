package models

import "strings"

// Roles a user record can carry in its type field
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a user in the system
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Type         string `json:"type"`
	PasswordHash string `json:"-"` // Never expose in JSON
}

// CreateUserRequest represents the request body for creating a new user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Type     string `json:"type,omitempty"`
}

// UpdateUserRequest represents the admin request body for editing a user.
// Nil fields are left unchanged.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Type     *string `json:"type,omitempty"`
}

// UpdateProfileRequest is the self-service subset of UpdateUserRequest
type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the response body for successful login
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ValidRoles defines the available roles in the system
var ValidRoles = []string{
	RoleUser,
	RoleAdmin,
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// IsAdmin checks if the user carries the elevated role
func (u *User) IsAdmin() bool {
	return u.Type == RoleAdmin
}

// GetDisplayName returns the user's display name
func (u *User) GetDisplayName() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Redacted returns a copy of the user with sensitive fields removed
func (u *User) Redacted() User {
	return User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Type:     u.Type,
	}
}
