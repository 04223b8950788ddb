package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/shopfront/auth-service/internal/adapters/cache"
	eventadapter "github.com/shopfront/auth-service/internal/adapters/events"
	grpcadapter "github.com/shopfront/auth-service/internal/adapters/grpc"
	httpadapter "github.com/shopfront/auth-service/internal/adapters/http"
	"github.com/shopfront/auth-service/internal/adapters/notify"
	"github.com/shopfront/auth-service/internal/adapters/postgres"
	"github.com/shopfront/auth-service/internal/adapters/security"
	"github.com/shopfront/auth-service/internal/application"
	"github.com/shopfront/auth-service/internal/ports"
)

type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	outbox     *eventadapter.OutboxWorker
	sessions   sessionPurger
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping auth service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	closers := []func() error{redisClient.Close, sqlDB.Close}
	cleanup := func(context.Context) {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}
	fail := func(err error) (*Runtime, error) {
		cleanup(ctx)
		return nil, err
	}

	hasher, err := security.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return fail(fmt.Errorf("init password hasher: %w", err))
	}
	tokenSigner, err := newTokenSigner(cfg, logger)
	if err != nil {
		return fail(err)
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return fail(err)
	}

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fail(fmt.Errorf("init kafka publisher: %w", err))
		}
		closers = append([]func() error{kafkaPublisher.Close}, closers...)
		publisher = kafkaPublisher
		logger.Info("publishing auth events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	repos := postgres.NewRepositories(db)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FailedLoginThreshold:                 cfg.FailedThreshold,
			LockoutDuration:                      cfg.LockoutDuration,
			OTPTTL:                               cfg.OTPTTL,
			OTPMaxAttempts:                       cfg.OTPMaxAttempts,
			OTPLockDuration:                      cfg.OTPLockDuration,
			TwoFactorRateLimitThreshold:          cfg.TwoFactorRateLimitThreshold,
			TwoFactorRateLimitWindow:             cfg.TwoFactorRateLimitWindow,
			SessionTTL:                           cfg.SessionTTL,
			ResetTokenTTL:                        cfg.ResetTokenTTL,
			VerificationTokenTTL:                 cfg.VerificationTokenTTL,
			RegisterRateLimitIPThreshold:         cfg.RegisterRateLimitIPThreshold,
			RegisterRateLimitIdentifierThreshold: cfg.RegisterRateLimitIdentifierThreshold,
			RegisterRateLimitWindow:              cfg.RegisterRateLimitWindow,
			ForgotPasswordRateLimitThreshold:     cfg.ForgotPasswordRateLimitThreshold,
			ForgotPasswordRateLimitWindow:        cfg.ForgotPasswordRateLimitWindow,
			PasswordRecheckRateLimitThreshold:    cfg.PasswordRecheckRateLimitThreshold,
			PasswordRecheckRateLimitWindow:       cfg.PasswordRecheckRateLimitWindow,
			PublicBaseURL:                        cfg.PublicBaseURL,
			StoreName:                            cfg.StoreName,
		},
		Accounts:    repos.Accounts,
		BackupCodes: repos.BackupCodes,
		Sessions:    repos.Sessions,
		SecurityLog: repos.SecurityLog,
		RateLimiter: cacheadapter.NewRedisRateLimiter(redisClient),
		LockCache:   cacheadapter.NewRedisLockCache(redisClient),
		Revocations: cacheadapter.NewRedisSessionRevocationStore(redisClient),
		Notifier:    notifier,
		Hasher:      hasher,
		TokenSigner: tokenSigner,
		TOTP:        security.NewTOTPProvider(cfg.TOTPIssuer, cfg.TOTPSkew),
	})

	handler := httpadapter.NewHandler(svc, readinessCheck(db, redisClient))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.LoggingInterceptor(logger)))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcHealth: healthSrv,
		outbox:     outbox,
		sessions:   svc,
		cleanupFn:  cleanup,
	}, nil
}

func newTokenSigner(cfg Config, logger *slog.Logger) (*security.JWTSigner, error) {
	signer, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err == nil {
		return signer, nil
	}
	if !cfg.AllowEphemeralJWT {
		return nil, fmt.Errorf("init jwt signer: %w", err)
	}
	logger.Warn("using ephemeral JWT keys for local/dev runtime")
	signer, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
	}
	return signer, nil
}

func newNotifier(cfg Config, logger *slog.Logger) (ports.Notifier, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; notifications are logged, not sent")
		return notify.NewLoggingNotifier(logger), nil
	}
	notifier, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("init smtp notifier: %w", err)
	}
	return notifier, nil
}

func readinessCheck(db *gorm.DB, redisClient *redis.Client) httpadapter.ReadinessCheck {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := postgres.Ping(ctx, db); err != nil {
			return err
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		return nil
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	r.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.sweepSessions(ctx)
	}()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	stop()
	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sweepSessions deletes expired sessions on a fixed interval until ctx ends.
func (r *Runtime) sweepSessions(ctx context.Context) {
	logger := r.logger.With("module", "session_sweeper", "layer", "worker")
	ticker := time.NewTicker(r.cfg.SessionSweepInterval)
	defer ticker.Stop()
	for {
		purged, err := r.sessions.PurgeExpiredSessions(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.ErrorContext(ctx, "session sweep failed", "operation", "purge_expired_sessions", "outcome", "failure", "error", err)
		case purged > 0:
			logger.InfoContext(ctx, "expired sessions purged", "operation", "purge_expired_sessions", "outcome", "success", "purged", purged)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
