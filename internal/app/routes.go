package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/ratelimit"
	"ats-optimizer/internal/middleware"
)

func httpHandler(f func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(f)
}

// SetupRoutes configures all HTTP routes for the application. Three rate
// limit buckets apply: a general per-IP bucket over everything, a stricter
// per-IP bucket on credential-handling endpoints, and a per-caller bucket on
// the analysis endpoint.
func (app *App) SetupRoutes(router *mux.Router) {
	h := app.Handlers

	router.Use(middleware.LoggingMiddleware)
	router.Use(ratelimit.HTTPMiddleware(app.RateLimits, ratelimit.BucketGeneral, ratelimit.IPKey))

	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	requireSession := auth.RequireSession(app.Tokens)
	authLimited := ratelimit.HTTPMiddleware(app.RateLimits, ratelimit.BucketAuth, ratelimit.IPKey)
	analyzeLimited := ratelimit.HTTPMiddleware(app.RateLimits, ratelimit.BucketAnalyze,
		ratelimit.CallerKey(auth.SessionCookieName))

	v1 := router.PathPrefix("/v1").Subrouter()

	// Credential-handling endpoints share the stricter auth bucket.
	authRoutes := v1.PathPrefix("/auth").Subrouter()
	authRoutes.Use(authLimited)
	authRoutes.HandleFunc("/register", h.Register).Methods("POST")
	authRoutes.HandleFunc("/login", h.Login).Methods("POST")
	authRoutes.HandleFunc("/logout", h.Logout).Methods("POST")
	authRoutes.HandleFunc("/forgot-password", h.ForgotPassword).Methods("POST")
	authRoutes.HandleFunc("/reset-password", h.ResetPassword).Methods("POST")
	authRoutes.Handle("/me", requireSession(httpHandler(h.Me))).Methods("GET")
	authRoutes.Handle("/account", requireSession(httpHandler(h.DeleteAccount))).Methods("DELETE")

	// The analysis endpoint authenticates both credential types itself.
	v1.Handle("/analyze", analyzeLimited(httpHandler(h.Analyze))).Methods("POST")
	v1.Handle("/analyze/history", requireSession(httpHandler(h.History))).Methods("GET")

	// Key management is session-only.
	keys := v1.PathPrefix("/keys").Subrouter()
	keys.Use(requireSession)
	keys.HandleFunc("", h.ListKeys).Methods("GET")
	keys.HandleFunc("", h.CreateKey).Methods("POST")
	keys.HandleFunc("/{id}", h.RevokeKey).Methods("DELETE")

	router.NotFoundHandler = httpHandler(h.NotFoundHandler)
}
