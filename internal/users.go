package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"device-inventory-api/internal/auth"
	"device-inventory-api/internal/models"
	"device-inventory-api/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// changePasswordRequest is the body of PUT /auth/change-password
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// loginUser handles user authentication
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		sendErrorResponse(w, "Username and password are required", "MISSING_CREDENTIALS", http.StatusBadRequest)
		return
	}

	user, err := s.Store.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		sendErrorResponse(w, "Invalid credentials", "INVALID_CREDENTIALS", http.StatusUnauthorized)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("login lookup failed")
		sendErrorResponse(w, "Database error", "DB_ERROR", http.StatusInternalServerError)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		sendErrorResponse(w, "Invalid credentials", "INVALID_CREDENTIALS", http.StatusUnauthorized)
		return
	}

	token, err := s.JWTManager.GenerateToken(user.ID, user.Type)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", user.ID).Msg("token generation failed")
		sendErrorResponse(w, "Failed to generate token", "TOKEN_ERROR", http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, models.LoginResponse{
		Token: token,
		User:  user.Redacted(),
	})
}

// getUserProfile handles getting the current user's profile
func (s *Server) getUserProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, user.Redacted())
}

// changePassword handles password changes for the signed-in user
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		sendErrorResponse(w, "Current password and new password are required", "MISSING_FIELDS", http.StatusBadRequest)
		return
	}

	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		sendErrorResponse(w, "Current password is incorrect", "INVALID_CREDENTIALS", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		sendErrorResponse(w, err.Error(), "WEAK_PASSWORD", http.StatusBadRequest)
		return
	}

	if err := s.Store.SetUserPassword(r.Context(), user.ID, hash); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", user.ID).Msg("password update failed")
		sendErrorResponse(w, "Failed to update password", "DB_ERROR", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// createUser provisions a new account of any role
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.RoleUser
	}
	s.insertUser(w, r, req)
}

// registerUser is public self-registration. The account always gets the
// standard role.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	req.Type = models.RoleUser
	s.insertUser(w, r, req)
}

func (s *Server) insertUser(w http.ResponseWriter, r *http.Request, req models.CreateUserRequest) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		sendErrorResponse(w, "Username, email and password are required", "MISSING_FIELDS", http.StatusBadRequest)
		return
	}
	if fe := validateUserFields(req.Username, req.Email, req.Type); fe != nil {
		sendErrorResponse(w, fe.message, fe.code, http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		sendErrorResponse(w, err.Error(), "WEAK_PASSWORD", http.StatusBadRequest)
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		Type:         req.Type,
		PasswordHash: hash,
	}
	if err := s.Store.CreateUser(r.Context(), &user); err != nil {
		sendUserStoreError(w, r, err, "create user failed")
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("user_id", user.ID).Str("type", user.Type).Msg("user created")
	sendJSON(w, http.StatusCreated, user.Redacted())
}

// updateUser handles admin edits of username, email and role
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if req.Username == nil && req.Email == nil && req.Type == nil {
		sendErrorResponse(w, "No fields to update", "NO_FIELDS", http.StatusBadRequest)
		return
	}

	user, err := s.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUserStoreError(w, r, err, "get user failed")
		return
	}
	applyUserFields(user, req.Username, req.Email)
	if req.Type != nil {
		user.Type = *req.Type
	}

	s.saveUser(w, r, user)
}

// updateUserProfile handles self-service edits of username and email
func (s *Server) updateUserProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if req.Username == nil && req.Email == nil {
		sendErrorResponse(w, "No fields to update", "NO_FIELDS", http.StatusBadRequest)
		return
	}

	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	applyUserFields(user, req.Username, req.Email)

	s.saveUser(w, r, user)
}

// deleteUser removes an account. Devices assigned to it and log entries it
// performed are kept and simply lose their display name.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.Store.WithTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		user, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			if err := requireOtherAdmin(ctx, tx, id); err != nil {
				return err
			}
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		sendUserStoreError(w, r, err, "delete user failed")
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("user_id", id).Msg("user deleted")
	w.WriteHeader(http.StatusNoContent)
}

// saveUser validates and persists user, refusing to demote the last admin
func (s *Server) saveUser(w http.ResponseWriter, r *http.Request, user *models.User) {
	if fe := validateUserFields(user.Username, user.Email, user.Type); fe != nil {
		sendErrorResponse(w, fe.message, fe.code, http.StatusBadRequest)
		return
	}

	err := s.Store.WithTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if current.IsAdmin() && !user.IsAdmin() {
			if err := requireOtherAdmin(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		sendUserStoreError(w, r, err, "update user failed")
		return
	}

	sendJSON(w, http.StatusOK, user.Redacted())
}

// listUsers handles user listing with pagination
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list users failed")
		sendErrorResponse(w, "Database error", "DB_ERROR", http.StatusInternalServerError)
		return
	}

	start, end := params.window(len(users))
	page := make([]models.User, 0, end-start)
	for i := start; i < end; i++ {
		page = append(page, users[i].Redacted())
	}

	sendListResponse(w, page, len(users), params)
}

// getUser handles getting a specific user
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUserStoreError(w, r, err, "get user failed")
		return
	}
	sendJSON(w, http.StatusOK, user.Redacted())
}

var errLastAdmin = errors.New("last admin")

// requireOtherAdmin fails with errLastAdmin unless an admin other than id exists
func requireOtherAdmin(ctx context.Context, users store.Users, id string) error {
	all, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		if u.ID != id && u.IsAdmin() {
			return nil
		}
	}
	return errLastAdmin
}

type fieldError struct {
	message string
	code    string
}

func validateUserFields(username, email, role string) *fieldError {
	if username == "" || email == "" {
		return &fieldError{"Username and email are required", "MISSING_FIELDS"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &fieldError{"Invalid email address", "INVALID_EMAIL"}
	}
	if !models.IsValidRole(role) {
		return &fieldError{"Invalid role provided", "INVALID_ROLE"}
	}
	return nil
}

func applyUserFields(u *models.User, username, email *string) {
	if username != nil {
		u.Username = strings.TrimSpace(*username)
	}
	if email != nil {
		u.Email = strings.TrimSpace(*email)
	}
}

// sendUserStoreError maps user store failures to responses
func sendUserStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendErrorResponse(w, "User not found", "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		sendErrorResponse(w, "User with this username or email already exists", "USER_EXISTS", http.StatusConflict)
	case errors.Is(err, errLastAdmin):
		sendErrorResponse(w, "Cannot remove the last admin", "LAST_ADMIN", http.StatusBadRequest)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
		sendErrorResponse(w, "Database error", "DB_ERROR", http.StatusInternalServerError)
	}
}

// currentUser loads the record behind the request's token
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		sendErrorResponse(w, "User ID not found in context", "UNAUTHENTICATED", http.StatusUnauthorized)
		return nil, false
	}

	user, err := s.Store.GetUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		sendErrorResponse(w, "User not found", "NOT_FOUND", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("load current user failed")
		sendErrorResponse(w, "Database error", "DB_ERROR", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}

// BootstrapAdmin creates an admin account named username unless one with
// that name already exists.
func (s *Server) BootstrapAdmin(ctx context.Context, username, email, password string) error {
	_, err := s.Store.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Type:         models.RoleAdmin,
		PasswordHash: hash,
	}
	if err := s.Store.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.Logger.Info().Str("user_id", user.ID).Str("username", username).Msg("bootstrap admin created")
	return nil
}
