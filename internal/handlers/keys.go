package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/storage"
)

type keyResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Prefix        string `json:"key_prefix"`
	Plan          string `json:"plan"`
	MonthlyQuota  int    `json:"monthly_quota"`
	UsedThisMonth int    `json:"used_this_month"`
	IsActive      bool   `json:"is_active"`
}

// ListKeys lists the account's API keys
// @Summary List API keys
// @Description Returns all API keys for the current account. Secrets are never returned, only display prefixes.
// @Tags keys
// @Produce json
// @Security SessionAuth
// @Success 200 {array} keyResponse "API keys"
// @Failure 401 {string} string "Authentication required"
// @Router /v1/keys [get]
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	keys, err := h.storage.ListAPIKeys(r.Context(), claims.Subject)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		out = append(out, map[string]interface{}{
			"id":              key.ID,
			"name":            key.Name,
			"key_prefix":      key.Prefix,
			"plan":            key.Plan,
			"monthly_quota":   key.MonthlyQuota,
			"used_this_month": key.UsedThisMonth,
			"last_reset_at":   key.LastResetAt,
			"is_active":       key.IsActive,
			"created_at":      key.CreatedAt,
			"last_used_at":    key.LastUsedAt,
		})
	}

	h.respondJSON(w, http.StatusOK, out)
}

// CreateKey mints a new API key
// @Summary Create an API key
// @Description Creates a new API key. The full secret is returned exactly once and never stored.
// @Tags keys
// @Accept json
// @Produce json
// @Security SessionAuth
// @Param request body object true "Key name and plan"
// @Success 201 {object} keyResponse "Created key with its one-time secret"
// @Failure 400 {string} string "Invalid input"
// @Failure 401 {string} string "Authentication required"
// @Router /v1/keys [post]
func (h *Handlers) CreateKey(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	var req struct {
		Name string `json:"name"`
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.ValidationError("Invalid JSON body."))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.respondError(w, errors.ValidationError("Name is required."))
		return
	}
	if req.Plan == "" {
		req.Plan = quota.PlanFree
	}
	// Keys carry their own plan; the trial entitlement belongs to accounts.
	if !quota.ValidPlan(req.Plan) || req.Plan == quota.PlanTrial {
		h.respondError(w, errors.ValidationError("Invalid plan. Use: free, pay_per_use, pro, business"))
		return
	}

	secret, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		h.respondError(w, errors.InternalError("failed to generate api key", err))
		return
	}

	key := &storage.APIKey{
		UserID:       claims.Subject,
		Name:         req.Name,
		KeyHash:      hash,
		Prefix:       prefix,
		Plan:         req.Plan,
		MonthlyQuota: quota.MonthlyQuota(req.Plan),
		IsActive:     true,
	}
	if err := h.storage.CreateAPIKey(r.Context(), key); err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("api key created",
		logging.Field{Key: "user_id", Value: claims.Subject},
		logging.Field{Key: "key_id", Value: key.ID})

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            key.ID,
		"name":          key.Name,
		"key_prefix":    key.Prefix,
		"plan":          key.Plan,
		"monthly_quota": key.MonthlyQuota,
		"created_at":    key.CreatedAt,
		"key":           secret,
		"warning":       "Save this key now. For security reasons, it will NOT be shown again.",
	})
}

// RevokeKey deactivates an API key
// @Summary Revoke an API key
// @Description Deactivates a key. Revocation is permanent; a revoked key never authenticates again.
// @Tags keys
// @Produce json
// @Security SessionAuth
// @Param id path string true "Key ID"
// @Success 200 {string} string "Key revoked"
// @Failure 401 {string} string "Authentication required"
// @Failure 404 {string} string "Key not found"
// @Router /v1/keys/{id} [delete]
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, errors.UnauthenticatedError("Authentication required"))
		return
	}

	keyID := mux.Vars(r)["id"]
	if err := h.storage.DeactivateAPIKey(r.Context(), claims.Subject, keyID); err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			h.respondError(w, errors.NotFoundError("API key"))
			return
		}
		h.respondError(w, err)
		return
	}

	h.logger.Info("api key revoked",
		logging.Field{Key: "user_id", Value: claims.Subject},
		logging.Field{Key: "key_id", Value: keyID})
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "API key revoked successfully."})
}
