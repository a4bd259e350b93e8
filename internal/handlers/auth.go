package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/storage"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Plan           string     `json:"plan"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	parts := strings.Split(email, "@")
	return len(parts) == 2 && parts[0] != "" && strings.Contains(parts[1], ".")
}

func (h *Handlers) decodeCredentials(r *http.Request) (*credentialsRequest, error) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("Invalid JSON body.")
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, errors.ValidationError("Email and password are required.")
	}
	return &req, nil
}

// Register creates a new account
// @Summary Create a new account
// @Description Registers a new account with a 30-day trial entitlement and opens a session
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body credentialsRequest true "Email and password"
// @Success 201 {object} userResponse "Created account"
// @Failure 400 {string} string "Invalid input"
// @Failure 409 {string} string "Email already registered"
// @Router /v1/auth/register [post]
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !validEmail(req.Email) {
		h.respondError(w, errors.ValidationError("A valid email address is required."))
		return
	}
	if len(req.Password) < 8 {
		h.respondError(w, errors.ValidationError("Password must be at least 8 characters."))
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(w, errors.InternalError("failed to hash password", err))
		return
	}

	now := time.Now()
	user := &storage.User{
		Email:          req.Email,
		PasswordHash:   passwordHash,
		Plan:           quota.PlanTrial,
		LastResetAt:    now,
		TrialExpiresAt: now.Add(quota.TrialDuration),
		CreatedAt:      now,
	}
	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		if errors.IsType(err, errors.ErrTypeConflict) {
			h.respondError(w, errors.ConflictError("Email already registered."))
			return
		}
		h.respondError(w, err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Email, user.Plan)
	if err != nil {
		h.respondError(w, errors.InternalError("failed to issue session token", err))
		return
	}
	auth.SetSessionCookie(w, token, h.config.IsProduction())

	h.logger.Info("account registered", logging.Field{Key: "user_id", Value: user.ID})
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user": userResponse{
			ID:             user.ID,
			Email:          user.Email,
			Plan:           user.Plan,
			TrialExpiresAt: &user.TrialExpiresAt,
		},
	})
}

// Login opens a session
// @Summary Log in with email and password
// @Description Verifies credentials and sets the session cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body credentialsRequest true "Email and password"
// @Success 200 {object} userResponse "Authenticated account"
// @Failure 401 {string} string "Invalid credentials"
// @Router /v1/auth/login [post]
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCredentials(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	user, err := h.storage.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Unknown accounts and wrong passwords produce the same response.
		if errors.IsType(err, errors.ErrTypeNotFound) {
			h.respondError(w, errors.UnauthenticatedError("Invalid credentials."))
			return
		}
		h.respondError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.respondError(w, errors.UnauthenticatedError("Invalid credentials."))
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Email, user.Plan)
	if err != nil {
		h.respondError(w, errors.InternalError("failed to issue session token", err))
		return
	}
	auth.SetSessionCookie(w, token, h.config.IsProduction())

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user": userResponse{ID: user.ID, Email: user.Email, Plan: user.Plan},
	})
}

// Logout clears the session cookie
// @Summary Log out
// @Description Expires the session cookie
// @Tags auth
// @Produce json
// @Success 200 {string} string "Logged out"
// @Router /v1/auth/logout [post]
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.config.IsProduction())
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

// Me returns the current account with live usage figures
// @Summary Get the current account profile
// @Description Returns the account with its plan and usage after applying any pending trial or monthly transitions
// @Tags auth
// @Produce json
// @Security SessionAuth
// @Success 200 {object} storage.User "Account profile"
// @Failure 401 {string} string "Authentication required"
// @Router /v1/auth/me [get]
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	user, err := h.ledger.Refresh(r.Context(), claims.Subject)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":              user.ID,
		"email":           user.Email,
		"plan":            user.Plan,
		"used_this_month": user.UsedThisMonth,
		"quota":           quota.MonthlyQuota(user.Plan),
		"quota_remaining": quota.Remaining(user),
		"trial_expires_at": func() interface{} {
			if user.TrialExpiresAt.IsZero() {
				return nil
			}
			return user.TrialExpiresAt
		}(),
		"created_at": user.CreatedAt,
	})
}

// DeleteAccount permanently removes the account and all its data
// @Summary Delete the current account
// @Description Permanently deletes the account with its API keys, reset tokens and analysis history
// @Tags auth
// @Produce json
// @Security SessionAuth
// @Success 200 {string} string "Account deleted"
// @Failure 401 {string} string "Authentication required"
// @Router /v1/auth/account [delete]
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	if err := h.storage.DeleteUserAccount(r.Context(), claims.Subject); err != nil {
		h.respondError(w, err)
		return
	}

	auth.ClearSessionCookie(w, h.config.IsProduction())
	h.logger.Info("account deleted", logging.Field{Key: "user_id", Value: claims.Subject})
	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Account and all associated data permanently deleted.",
	})
}

// ForgotPassword requests a reset link
// @Summary Request a password reset email
// @Description Sends a reset link when the account exists. The response is identical either way.
// @Tags auth
// @Accept json
// @Produce json
// @Param email body object true "Account email"
// @Success 200 {string} string "Reset link sent if the account exists"
// @Router /v1/auth/forgot-password [post]
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.ValidationError("Invalid JSON body."))
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		h.respondError(w, errors.ValidationError("Email is required."))
		return
	}

	if err := h.resets.Request(r.Context(), req.Email); err != nil {
		// Logged but not surfaced: the response must not depend on whether
		// the account exists or the flow succeeded.
		h.logger.Error("password reset request failed", err)
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists with this email, a reset link has been sent.",
	})
}

// ResetPassword redeems a reset token
// @Summary Reset the password with a token
// @Description Sets a new password using a single-use reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object true "Token and new password"
// @Success 200 {string} string "Password reset"
// @Failure 400 {string} string "Invalid or expired token"
// @Router /v1/auth/reset-password [post]
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.ValidationError("Invalid JSON body."))
		return
	}
	if req.Token == "" || req.Password == "" {
		h.respondError(w, errors.ValidationError("Token and password are required."))
		return
	}
	if len(req.Password) < 8 {
		h.respondError(w, errors.ValidationError("Password must be at least 8 characters."))
		return
	}

	if err := h.resets.Consume(r.Context(), req.Token, req.Password); err != nil {
		h.respondError(w, err)
		return
	}

	auth.ClearSessionCookie(w, h.config.IsProduction())
	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully. You can now log in.",
	})
}
