package handler

import (
	"net/http"

	"github.com/goquote/goquote-go/internal/middleware"
	"github.com/goquote/goquote-go/internal/model"
	"github.com/goquote/goquote-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// HandleSignUp handles POST /api/auth/signup requests.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req model.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.SignUp(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleSignIn handles POST /api/auth/signin requests.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.SignIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleForgotPassword handles POST /api/auth/forgot-password requests.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.ForgotPassword(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleResendOTP handles POST /api/auth/resend-otp requests.
func (h *AuthHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req model.ResendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.ResendVerification(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleVerifyOTP handles POST /api/auth/verify-otp requests.
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.VerifyOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleResetPassword handles POST /api/auth/reset-password requests.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.ResetPassword(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleMe handles GET /api/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("Unauthorized"))
		return
	}

	resp, err := h.service.Me(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
