package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reawakened/rw-backend/internal/config"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/utils"
)

// Limiter builds the rate-limit middleware for a named policy.
type Limiter func(policy string) func(http.Handler) http.Handler

func SetupRoutes(h *Handler, limit Limiter) http.Handler {
	r := chi.NewRouter()
	sessionFetcher := h.svc

	r.Get("/csrf", h.CSRFHandler)

	r.With(limit(config.PolicyAuth), limit(config.PolicyAuthStrict)).Post("/register", h.RegisterHandler)
	r.With(limit(config.PolicyAuth), limit(config.PolicyAuthStrict)).Post("/login", h.LoginHandler)
	r.With(limit(config.PolicyForgotPassword)).Post("/forgot-password", h.ForgotPasswordHandler)
	r.With(limit(config.PolicyWrite)).Post("/reset-password", h.ResetPasswordHandler)
	r.With(limit(config.PolicyWrite)).Post("/verify-email", h.VerifyEmailHandler)

	r.Post("/logout", h.LogoutHandler)
	r.With(middleware.SessionMiddleware(sessionFetcher)).Get("/me", h.MeHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))
		r.Use(limit(config.PolicyWrite))
		r.Post("/add-password", h.AddPasswordHandler)
		r.Post("/resend-verification", h.ResendVerificationHandler)
		r.Post("/change-password", h.ChangePasswordHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))
		r.Use(middleware.RequireRole(utils.RoleAdmin))
		r.Use(limit(config.PolicyWrite))
		r.Patch("/users/{id}/role", h.SetRoleHandler)
		r.Post("/users/{id}/disable", h.SetDisabledHandler)
	})

	return r
}
