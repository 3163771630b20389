package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/config"
	"github.com/KVLNK12305/Akira/internal/infra/database"
	kafkainfra "github.com/KVLNK12305/Akira/internal/infra/kafka"
	redisinfra "github.com/KVLNK12305/Akira/internal/infra/redis"
	"github.com/KVLNK12305/Akira/internal/infra/security"
	"github.com/KVLNK12305/Akira/internal/infra/telemetry"
	postgresrepo "github.com/KVLNK12305/Akira/internal/repository/postgres"
	redisrepo "github.com/KVLNK12305/Akira/internal/repository/redis"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
	"github.com/KVLNK12305/Akira/internal/transport/http/routes"
	"github.com/KVLNK12305/Akira/internal/usecase"
)

const defaultShutdownTimeout = 10 * time.Second

// Application owns every long-lived resource of the process.
type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracing    *telemetry.TracerProvider
	dispatcher *usecase.Dispatcher
}

// New wires stores, security primitives and services. Any failure releases what was already opened.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (_ *Application, err error) {
	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	secrets, err := security.LoadSecrets(security.SecretSources{
		MasterKeyHex:   cfg.Secrets.MasterKey,
		SigningKeyHex:  cfg.Secrets.SigningKey,
		SessionKeyHex:  cfg.Secrets.SessionKey,
		Directory:      cfg.Secrets.Directory,
		AllowEphemeral: cfg.Secrets.AllowEphemeral && !cfg.App.Production(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	if a.tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log); err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, a.pool, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log); err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	vault, err := security.NewVault(secrets.MasterKey())
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	signer, err := security.NewAuditSigner(secrets.SigningKey())
	if err != nil {
		return nil, fmt.Errorf("init audit signer: %w", err)
	}
	tokens, err := security.NewSessionTokenManager(security.SessionTokenOptions{
		Key:    secrets.SessionKey(),
		Issuer: cfg.Session.Issuer,
		TTL:    cfg.Session.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init argon2: %w", err)
	}
	passwordPolicy := security.NewPasswordPolicy(security.PasswordPolicyOptions{
		MinLength:        cfg.Password.MinLength,
		MinStrengthScore: cfg.Password.MinStrengthScore,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := a.redis.RegisterPoolMetrics(registry, telemetry.Namespace); err != nil {
		return nil, err
	}
	domainMetrics, err := telemetry.NewDomainMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("init domain metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	notifier, err := a.buildNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	a.dispatcher = usecase.NewDispatcher(notifier, cfg.Notifier.Timeout, log)

	repos := postgresrepo.NewRepositories(a.pool)
	stores := repos.Stores()
	challenges := redisrepo.NewChallengeRepository(a.redis.Client(), cfg.Challenge.KeyPrefix)

	var revocations port.SessionRevocationStore
	if cfg.Session.RevocationEnabled {
		revocations = redisrepo.NewSessionRevocationRepository(a.redis.Client(), cfg.Session.RevocationPrefix)
	}

	ledger := usecase.NewAuditLedger(stores.Audit, signer, log).WithMetrics(domainMetrics)

	keys := usecase.NewAPIKeyManager(repos, stores.Identities, stores.APIKeys, ledger, vault, usecase.APIKeyManagerOptions{
		Validity:       cfg.Keys.Validity,
		IssueSource:    security.LocalKeySource{},
		RotationSource: rotationSource(cfg.Keys, log),
		Metrics:        domainMetrics,
		Logger:         log,
	})

	auth := usecase.NewAuthSessionMachine(repos, stores.Identities, challenges, hasher, passwordPolicy, tokens, ledger, a.dispatcher,
		usecase.AuthSessionOptions{
			ChallengeTTL: cfg.Challenge.TTL,
			MaxAttempts:  cfg.Challenge.MaxAttempts,
			Revocations:  revocations,
			Metrics:      domainMetrics,
			Logger:       log,
		})

	a.engine = routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  httpMetrics,
		Gatherer: registry,
		Tracer:   a.tracing.Tracer("github.com/KVLNK12305/Akira/http"),
		Database: a.pool,
		Cache:    a.redis,
		Services: routes.ServiceSet{
			Auth:           auth,
			Keys:           keys,
			Audit:          usecase.NewAuditService(stores.Identities, ledger, signer).WithLimits(cfg.Audit.DefaultLimit, cfg.Audit.MaxLimit),
			Identities:     usecase.NewIdentityService(repos, stores.Identities, ledger),
			AccessRequests: usecase.NewAccessRequestService(repos, stores.Identities, stores.AccessRequests, ledger, a.dispatcher),
		},
	})

	log.Info("application wired",
		zap.Bool("ephemeral_secrets", secrets.Ephemeral()),
		zap.Bool("session_revocation", auth.RevocationEnabled()),
		zap.Bool("kafka_notifier", a.producer != nil),
	)

	return a, nil
}

func (a *Application) buildNotifier(cfg *config.AppConfig, log *zap.Logger) (port.Notifier, error) {
	if !cfg.Kafka.Enabled {
		log.Info("kafka disabled, notifications are written to the log")
		return kafkainfra.NewLogNotifier(log, !cfg.App.Production()), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}
	a.producer = producer
	log.Info("kafka notifier initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewNotifier(producer, cfg.App, log), nil
}

func rotationSource(cfg config.KeySettings, log *zap.Logger) port.KeySource {
	if cfg.EntropyDevice == "" {
		return security.LocalKeySource{}
	}

	device := security.NewDeviceKeySource(cfg.EntropyDevice, cfg.EntropyTimeout)
	var fallback port.KeySource
	if cfg.AllowLocalFallback {
		fallback = security.LocalKeySource{}
	}
	return security.NewFallbackKeySource(device, fallback, log)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and notifications.
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting akira api",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		a.release(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		return nil
	case err := <-serverErrCh:
		a.release(context.Background())
		return err
	}
}

// release closes resources in reverse dependency order. Pending notifications are
// delivered before the producer goes away.
func (a *Application) release(ctx context.Context) {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
}
