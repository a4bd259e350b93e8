package handlers

import (
	"net/http"
	"time"
)

// Version is the reported API version.
const Version = "1.0.0"

// Health reports service health
// @Summary Health check
// @Description Reports the health of the service and its backing components
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service healthy"
// @Failure 503 {object} map[string]interface{} "One or more components unhealthy"
// @Router /health [get]
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	if err := h.storage.Health(); err != nil {
		components["database"] = "unhealthy"
		healthy = false
	} else {
		components["database"] = "ok"
	}

	for name, probe := range h.healthProbes {
		if err := probe(); err != nil {
			components[name] = "unhealthy"
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	h.respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"version":    Version,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}

// Index describes the API surface
// @Summary API index
// @Description Lists the top-level endpoint groups
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "API description"
// @Router / [get]
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "CV ATS Optimizer API",
		"version": Version,
		"docs":    "/docs",
		"endpoints": map[string]string{
			"auth":    "/v1/auth",
			"analyze": "/v1/analyze",
			"keys":    "/v1/keys",
		},
	})
}
