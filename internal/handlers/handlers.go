package handlers

import (
	"encoding/json"
	"net/http"

	"ats-optimizer/internal/analyzer"
	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/config"
	"ats-optimizer/internal/quota"
	"ats-optimizer/internal/resetpass"
	"ats-optimizer/internal/storage"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	storage  storage.Storage
	tokens   *auth.TokenManager
	resolver *auth.Resolver
	ledger   *quota.Ledger
	resets   *resetpass.Ledger
	analyzer analyzer.Analyzer
	config   *config.Config
	logger   logging.Logger

	// health probes beyond storage, keyed by component name
	healthProbes map[string]func() error
}

func New(store storage.Storage, tokens *auth.TokenManager, resolver *auth.Resolver,
	ledger *quota.Ledger, resets *resetpass.Ledger, az analyzer.Analyzer,
	cfg *config.Config) *Handlers {
	return &Handlers{
		storage:      store,
		tokens:       tokens,
		resolver:     resolver,
		ledger:       ledger,
		resets:       resets,
		analyzer:     az,
		config:       cfg,
		logger:       logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
		healthProbes: make(map[string]func() error),
	}
}

// AddHealthProbe registers an extra component check for the health endpoint.
func (h *Handlers) AddHealthProbe(name string, probe func() error) {
	h.healthProbes[name] = probe
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error("failed to encode response", err)
		}
	}
}

// respondError maps an application error to its HTTP shape. Internal details
// are logged, never sent; quota denials additionally carry the plan, the
// quota figure and a pointer at the pricing page.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		h.logger.Error("unhandled error", err)
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Internal server error.",
		})
		return
	}

	if appErr.Type == errors.ErrTypeInternal {
		h.logger.Error(appErr.Message, appErr.Cause)
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Internal server error.",
		})
		return
	}

	body := map[string]interface{}{"error": appErr.Message}
	if appErr.Type == errors.ErrTypeQuotaExceeded {
		for k, v := range appErr.Context {
			body[k] = v
		}
		body["upgrade_url"] = h.config.FrontendBaseURL + "/pricing"
	}

	h.respondJSON(w, appErr.HTTPStatus(), body)
}

// NotFoundHandler is the JSON fallback for unmatched routes.
func (h *Handlers) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found."})
}
