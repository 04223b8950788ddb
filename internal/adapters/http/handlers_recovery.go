package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopfront/auth-service/internal/application"
)

func (h *Handler) passwordForgot(w http.ResponseWriter, r *http.Request) {
	var req application.ForgotPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_forgot", err)
		return
	}
	req.Meta = requestMeta(r)

	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "password_forgot", err)
		return
	}
	writeMessage(w, http.StatusOK, "If the email exists, a password reset link has been sent")
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req application.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_reset", err)
		return
	}
	req.Token = chi.URLParam(r, "token")
	req.Meta = requestMeta(r)

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "password_reset", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) passwordChange(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "password_change")
		return
	}
	var req application.ChangePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "password_change", err)
		return
	}
	req.Meta = requestMeta(r)

	if err := h.service.ChangePassword(r.Context(), token, req); err != nil {
		writeMappedError(r.Context(), w, "password_change", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (h *Handler) emailVerifyRequest(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "email_verify_request")
		return
	}
	if err := h.service.RequestEmailVerification(r.Context(), token); err != nil {
		writeMappedError(r.Context(), w, "email_verify_request", err)
		return
	}
	writeMessage(w, http.StatusOK, "Verification email sent")
}

func (h *Handler) emailVerify(w http.ResponseWriter, r *http.Request) {
	var req application.VerifyEmailRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "email_verify", err)
		return
	}
	req.Meta = requestMeta(r)

	if err := h.service.VerifyEmail(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "email_verify", err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully")
}
