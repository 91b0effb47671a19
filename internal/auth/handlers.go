package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/reawakened/rw-backend/internal/mailer"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/utils"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxBodyBytes      = 1 << 20
)

const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// Notifier sends account emails without blocking the caller.
type Notifier interface {
	SendWelcome(to, displayName string) error
	SendVerification(to, displayName, token string) error
	SendPasswordReset(to, displayName, token string) error
}

type Handler struct {
	svc     *Service
	notify  Notifier
	cookies middleware.CookieOptions
	logger  *slog.Logger
}

func NewHandler(svc *Service, notify Notifier, cookies middleware.CookieOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, notify: notify, cookies: cookies, logger: logger}
}

func (h *Handler) CSRFHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"token": middleware.CSRFTokenFromContext(r.Context()),
	})
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if msg := validateEmail(input.Email); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validatePassword(input.Password); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	meta := requestMeta(r)
	u, err := h.svc.Register(r.Context(), RegisterInput{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}, meta)
	if errors.Is(err, ErrEmailExists) {
		utils.WriteError(w, http.StatusBadRequest, "An account with this email already exists")
		return
	}
	if err != nil {
		h.serverError(w, r, "register failed", err)
		return
	}

	res, err := h.svc.Login(r.Context(), u.Email, input.Password, meta)
	if err != nil {
		h.serverError(w, r, "login after register failed", err)
		return
	}
	middleware.SetSessionCookie(w, res.Token, h.svc.Settings().SessionTTL, h.cookies)

	name := mailer.DisplayName(u.Email, u.FirstName, u.LastName)
	h.sendVerification(r, u, name)
	if err := h.notify.SendWelcome(u.Email, name); err != nil {
		h.logger.Error("welcome email failed", "user_id", u.ID, "err", err)
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    res.User.Public(),
		"message": "Account created. Check your email to verify your address.",
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	res, err := h.svc.Login(r.Context(), input.Email, input.Password, requestMeta(r))
	if err != nil {
		if msg, ok := loginFailureMessage(err); ok {
			utils.WriteError(w, http.StatusUnauthorized, msg)
			return
		}
		h.serverError(w, r, "login failed", err)
		return
	}

	middleware.SetSessionCookie(w, res.Token, h.svc.Settings().SessionTTL, h.cookies)
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    res.User.Public(),
	})
}

func loginFailureMessage(err error) (string, bool) {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		return capitalize(locked.Error()), true
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password", true
	case errors.Is(err, ErrAccountDisabled):
		return "This account has been disabled", true
	case errors.Is(err, ErrNoPasswordSet):
		return "No password is set for this account. Use forgot password to set one.", true
	}
	return "", false
}

// LogoutHandler always succeeds and clears both cookies.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.svc.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("logout failed", "request_id", chimw.GetReqID(r.Context()), "err", err)
		}
	}

	middleware.ClearSessionCookie(w)
	middleware.ClearCSRFCookie(w)
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	u, _, ok := userFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"user":     u.Public(),
		"provider": u.ProviderTag(),
	})
}

func (h *Handler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if msg := validateEmail(input.Email); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	u, token, err := h.svc.RequestPasswordReset(r.Context(), input.Email, requestMeta(r))
	if err != nil {
		h.serverError(w, r, "password reset request failed", err)
		return
	}
	if u != nil {
		name := mailer.DisplayName(u.Email, u.FirstName, u.LastName)
		if err := h.notify.SendPasswordReset(u.Email, name, token); err != nil {
			h.logger.Error("reset email failed", "user_id", u.ID, "err", err)
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": forgotPasswordMessage,
	})
}

func (h *Handler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if input.Token == "" {
		utils.WriteError(w, http.StatusBadRequest, "Reset token is required")
		return
	}
	if msg := validatePassword(input.Password); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	err := h.svc.ResetPassword(r.Context(), input.Token, input.Password, requestMeta(r))
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	if err != nil {
		h.serverError(w, r, "password reset failed", err)
		return
	}

	middleware.ClearSessionCookie(w)
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Your password has been reset. Please log in with your new password.",
	})
}

func (h *Handler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if input.Token == "" {
		utils.WriteError(w, http.StatusBadRequest, "Verification token is required")
		return
	}

	email, err := h.svc.VerifyEmail(r.Context(), input.Token, requestMeta(r))
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	if err != nil {
		h.serverError(w, r, "email verification failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   email,
		"message": "Email verified",
	})
}

func (h *Handler) AddPasswordHandler(w http.ResponseWriter, r *http.Request) {
	current, _, ok := userFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var input struct {
		Password string `json:"password"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if msg := validatePassword(input.Password); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	u, err := h.svc.AddPasswordToAccount(r.Context(), current.ID, input.Password, requestMeta(r))
	if errors.Is(err, ErrPasswordAlreadySet) {
		utils.WriteError(w, http.StatusBadRequest, "This account already has a password")
		return
	}
	if err != nil {
		h.serverError(w, r, "add password failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    u.Public(),
		"message": "Password added. You can now log in with your email and password.",
	})
}

func (h *Handler) ResendVerificationHandler(w http.ResponseWriter, r *http.Request) {
	u, _, ok := userFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if u.EmailVerifiedAt != nil {
		utils.WriteError(w, http.StatusBadRequest, "Email is already verified")
		return
	}

	if !h.sendVerification(r, u, mailer.DisplayName(u.Email, u.FirstName, u.LastName)) {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to send verification email")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification email sent",
	})
}

func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	u, session, ok := userFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var input struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if input.CurrentPassword == "" {
		utils.WriteError(w, http.StatusBadRequest, "Current password is required")
		return
	}
	if msg := validatePassword(input.NewPassword); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	err := h.svc.ChangePassword(r.Context(), u.ID, session.Token, input.CurrentPassword, input.NewPassword, requestMeta(r))
	switch {
	case errors.Is(err, ErrIncorrectPassword):
		utils.WriteError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	case errors.Is(err, ErrNoPasswordSet):
		utils.WriteError(w, http.StatusBadRequest, "No password is set for this account")
		return
	case err != nil:
		h.serverError(w, r, "change password failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password changed. Other sessions have been signed out.",
	})
}

func (h *Handler) SetRoleHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var input struct {
		Role string `json:"role"`
	}
	if !h.decode(w, r, &input) {
		return
	}

	u, err := h.svc.SetRole(r.Context(), actor, chi.URLParam(r, "id"), input.Role, requestMeta(r))
	if err != nil {
		h.adminError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": u.Public()})
}

func (h *Handler) SetDisabledHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var input struct {
		Disabled *bool `json:"disabled"`
	}
	if !h.decode(w, r, &input) {
		return
	}
	if input.Disabled == nil {
		utils.WriteError(w, http.StatusBadRequest, "disabled is required")
		return
	}

	u, err := h.svc.SetDisabled(r.Context(), actor, chi.URLParam(r, "id"), *input.Disabled, requestMeta(r))
	if err != nil {
		h.adminError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user":       u.Public(),
		"isDisabled": u.IsDisabled,
	})
}

func (h *Handler) adminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRole):
		utils.WriteError(w, http.StatusBadRequest, "Unknown role")
	case errors.Is(err, ErrUserNotFound):
		utils.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrRoleNotAllowed):
		utils.WriteError(w, http.StatusForbidden, "Forbidden: cannot manage this user")
	default:
		h.serverError(w, r, "admin action failed", err)
	}
}

// sendVerification issues a token and queues the email. Failures are
// logged; the caller decides whether they matter.
func (h *Handler) sendVerification(r *http.Request, u *User, name string) bool {
	token, err := h.svc.CreateEmailVerificationToken(r.Context(), u.ID, u.Email)
	if err != nil {
		h.logger.Error("create verification token failed", "user_id", u.ID, "err", err)
		return false
	}
	if err := h.notify.SendVerification(u.Email, name, token); err != nil {
		h.logger.Error("verification email failed", "user_id", u.ID, "err", err)
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"request_id", chimw.GetReqID(r.Context()),
		"path", r.URL.Path,
		"err", err,
	)
	utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

func requestMeta(r *http.Request) RequestMeta {
	return RequestMeta{IP: utils.ClientIP(r), UserAgent: r.UserAgent()}
}

func actorFromContext(r *http.Request) (Actor, bool) {
	session, ok := utils.GetSessionFromContext(r.Context())
	if !ok || session.UserID == "" {
		return Actor{}, false
	}
	return Actor{UserID: session.UserID, Role: session.Role}, true
}

func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "Invalid email address"
	}
	return ""
}

func validatePassword(password string) string {
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		return "Password is required"
	case n < minPasswordLength:
		return "Password must be at least 8 characters"
	case n > maxPasswordLength:
		return "Password must be at most 128 characters"
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
