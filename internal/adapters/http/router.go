package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopfront/auth-service/internal/application"
	"github.com/shopfront/auth-service/internal/ports"
)

// AuthService is the application surface the HTTP adapter drives.
type AuthService interface {
	Register(ctx context.Context, req application.RegisterRequest) (application.RegisterResponse, error)
	Login(ctx context.Context, req application.LoginRequest) (application.AuthStepResponse, error)
	VerifyOTP(ctx context.Context, req application.OTPVerifyRequest) (application.AuthStepResponse, error)
	ResendOTP(ctx context.Context, req application.OTPResendRequest) (application.OTPResendResponse, error)
	Verify2FA(ctx context.Context, req application.TwoFAVerifyRequest) (application.AuthStepResponse, error)

	Begin2FAEnrollment(ctx context.Context, token string, meta application.RequestMeta) (application.TwoFAEnrollmentResponse, error)
	Confirm2FAEnrollment(ctx context.Context, token string, req application.TwoFAConfirmRequest) (application.BackupCodesResponse, error)
	Disable2FA(ctx context.Context, token string, req application.TwoFADisableRequest) error
	RegenerateBackupCodes(ctx context.Context, token string, req application.RegenerateBackupCodesRequest) (application.BackupCodesResponse, error)

	ForgotPassword(ctx context.Context, req application.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req application.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, token string, req application.ChangePasswordRequest) error
	RequestEmailVerification(ctx context.Context, token string) error
	VerifyEmail(ctx context.Context, req application.VerifyEmailRequest) error

	ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error)
	Logout(ctx context.Context, token string, meta application.RequestMeta) error
	SecurityLog(ctx context.Context, token string) ([]application.SecurityLogItem, error)
}

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

// Handler is the HTTP adapter entrypoint for auth use-cases.
type Handler struct {
	service AuthService
	ready   ReadinessCheck
}

// NewHandler constructs an HTTP handler; a nil readiness check always reports ready.
func NewHandler(service AuthService, ready ReadinessCheck) *Handler {
	return &Handler{service: service, ready: ready}
}

// NewRouter registers the auth routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(withRequestID)
	r.Use(recoverPanics)
	r.Use(accessLog)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/otp/verify", handler.otpVerify)
		r.Post("/otp/resend", handler.otpResend)
		r.Post("/2fa/verify", handler.twoFAVerify)
		r.Post("/password/forgot", handler.passwordForgot)
		r.Put("/password/reset/{token}", handler.passwordReset)
		r.Post("/email/verify", handler.emailVerify)

		r.Group(func(r chi.Router) {
			r.Use(handler.requireSession)
			r.Post("/2fa/enroll/begin", handler.twoFAEnrollBegin)
			r.Post("/2fa/enroll/confirm", handler.twoFAEnrollConfirm)
			r.Post("/2fa/disable", handler.twoFADisable)
			r.Post("/2fa/backup-codes", handler.twoFABackupCodes)
			r.Post("/password/change", handler.passwordChange)
			r.Post("/email/verify-request", handler.emailVerifyRequest)
			r.Get("/security-log", handler.securityLog)
			r.Post("/logout", handler.logout)
		})
	})

	return r
}
