package http

import (
	"net/http"

	"github.com/shopfront/auth-service/internal/application"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "register", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "register", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) otpVerify(w http.ResponseWriter, r *http.Request) {
	var req application.OTPVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "otp_verify", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.VerifyOTP(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "otp_verify", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// otpResend reports "too soon" in the payload rather than as an error status.
func (h *Handler) otpResend(w http.ResponseWriter, r *http.Request) {
	var req application.OTPResendRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "otp_resend", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.ResendOTP(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "otp_resend", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) twoFAVerify(w http.ResponseWriter, r *http.Request) {
	var req application.TwoFAVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_fa_verify", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.Verify2FA(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "two_fa_verify", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
