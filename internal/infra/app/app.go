package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/config"
	"github.com/josemoyano04/user-manager/internal/infra/database"
	kafkainfra "github.com/josemoyano04/user-manager/internal/infra/kafka"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
	"github.com/josemoyano04/user-manager/internal/infra/mail"
	redisinfra "github.com/josemoyano04/user-manager/internal/infra/redis"
	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/infra/telemetry"
	"github.com/josemoyano04/user-manager/internal/repository/memory"
	redisrepo "github.com/josemoyano04/user-manager/internal/repository/redis"
	"github.com/josemoyano04/user-manager/internal/repository/sqlrepo"
	"github.com/josemoyano04/user-manager/internal/transport/http/handlers"
	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/transport/http/routes"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// Application owns every long lived resource of the running service.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	storage  database.Storage
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
	codes    *memory.RecoveryCodeStore
}

// New builds the application graph. Resources opened before a failure are released.
func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.Telemetry.TracingEnabled {
		a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	a.storage, err = OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// sqlite has a single writer; the lock is always on for it.
	serialize := cfg.Storage.Serialize || cfg.Storage.Driver == config.StorageDriverSQLite
	users := sqlrepo.NewUserDirectory(a.storage, sqlrepo.WithSerializedAccess(serialize))

	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	codeLifetime := time.Duration(cfg.Recovery.CodeExpireMinutes) * time.Minute
	var codes port.RecoveryCodeStore
	switch cfg.Recovery.Store {
	case config.RecoveryStoreRedis:
		codes = redisrepo.NewRecoveryCodeRepository(a.redis.Client(), cfg.Recovery.KeyPrefix, codeLifetime, cfg.Recovery.Retention)
	default:
		a.codes = memory.NewRecoveryCodeStore(codeLifetime, cfg.Recovery.Retention, log)
		codes = a.codes
	}

	events := a.eventPublisher()
	mailer := newMailer(cfg, log)

	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}
	policy := security.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.MinScore)

	tokens, err := security.NewTokenManager(cfg.JWT.SecretKey, cfg.JWT.Algorithm, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	recoveryMetrics, err := telemetry.NewRecoveryMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init recovery metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	var rateLimiter *middleware.RateLimiter
	if a.redis != nil {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		store := redisrepo.NewRateLimitRepository(a.redis.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: "usermanager:rate-limit",
			TTL:       window * 2,
		})
		rateLimiter = middleware.NewRateLimiter(store, log)
	} else {
		log.Info("redis disabled, rate limiting is off")
	}

	services := routes.ServiceSet{
		Auth:  usecase.NewAuthService(users, hasher, tokens, log),
		Users: usecase.NewUserService(users, hasher, policy, events, log),
		Recovery: usecase.NewPasswordRecoveryService(users, codes, mailer, hasher, policy, tokens, events, recoveryMetrics,
			usecase.RecoveryOptions{
				AllowCustomCode: cfg.Recovery.AllowCustomCode,
				ExposeCode:      cfg.Recovery.ExposeCode,
			}, log),
	}

	probes := map[string]handlers.Probe{"database": a.storage.Ping}
	if a.redis != nil {
		probes["redis"] = a.redis.HealthCheck
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Services:    services,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Probes:      probes,
	})

	return a, nil
}

// OpenStorage opens the configured storage, waits for it to answer and applies pending
// migrations when auto_migrate is set.
func OpenStorage(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (database.Storage, error) {
	storage, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if err := database.WaitForStorage(ctx, storage, cfg.Storage.ConnectTimeout, log); err != nil {
		_ = storage.Close()
		return nil, err
	}

	if cfg.Storage.AutoMigrate {
		if err := database.Migrate(ctx, storage, log); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("migrate storage: %w", err)
		}
	}
	return storage, nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func newMailer(cfg *config.AppConfig, log *zap.Logger) port.RecoveryMailer {
	sender := mail.NewSMTPSender(cfg.SMTP, log)
	if sender.Configured() {
		return sender
	}
	log.Warn("smtp sender not configured, recovery codes will only be logged")
	return mail.NewLoggingMailer(log)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if a.codes != nil {
		go a.codes.Run(ctx, a.cfg.Recovery.PurgeInterval)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting user manager API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("recovery_store", a.cfg.Recovery.Store),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("user manager API stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("close storage", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tracer.Shutdown(ctx)
	}
	_ = a.logger.Sync()
}
