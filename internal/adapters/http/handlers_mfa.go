package http

import (
	"net/http"

	"github.com/shopfront/auth-service/internal/application"
)

func (h *Handler) twoFAEnrollBegin(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "two_fa_enroll_begin")
		return
	}
	res, err := h.service.Begin2FAEnrollment(r.Context(), token, requestMeta(r))
	if err != nil {
		writeMappedError(r.Context(), w, "two_fa_enroll_begin", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) twoFAEnrollConfirm(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "two_fa_enroll_confirm")
		return
	}
	var req application.TwoFAConfirmRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_fa_enroll_confirm", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.Confirm2FAEnrollment(r.Context(), token, req)
	if err != nil {
		writeMappedError(r.Context(), w, "two_fa_enroll_confirm", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) twoFADisable(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "two_fa_disable")
		return
	}
	var req application.TwoFADisableRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_fa_disable", err)
		return
	}
	req.Meta = requestMeta(r)

	if err := h.service.Disable2FA(r.Context(), token, req); err != nil {
		writeMappedError(r.Context(), w, "two_fa_disable", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"disabled": true})
}

func (h *Handler) twoFABackupCodes(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "two_fa_backup_codes")
		return
	}
	var req application.RegenerateBackupCodesRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "two_fa_backup_codes", err)
		return
	}
	req.Meta = requestMeta(r)

	res, err := h.service.RegenerateBackupCodes(r.Context(), token, req)
	if err != nil {
		writeMappedError(r.Context(), w, "two_fa_backup_codes", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
