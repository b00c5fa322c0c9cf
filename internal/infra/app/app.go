package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/database"
	"github.com/arklim/social-platform-messenger/internal/infra/email"
	kafkainfra "github.com/arklim/social-platform-messenger/internal/infra/kafka"
	"github.com/arklim/social-platform-messenger/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-messenger/internal/infra/redis"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
	postgresrepo "github.com/arklim/social-platform-messenger/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-messenger/internal/repository/redis"
	"github.com/arklim/social-platform-messenger/internal/transport/ws"
	"github.com/arklim/social-platform-messenger/internal/usecase"
)

// Application owns every long-lived component of the gateway process
// and tears them down in reverse order on shutdown.
type Application struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	server   *ws.Server
}

// New assembles the gateway: crypto material, backing stores, services
// and the socket server.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	// The process keypair seeds every connection's key exchange.
	keypair, err := security.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate session keypair: %w", err)
	}

	if cfg.AtRest.Passphrase == "" || cfg.AtRest.Salt == "" {
		return nil, fmt.Errorf("at-rest passphrase and salt must be configured")
	}
	fieldKey := security.DeriveKey(cfg.AtRest.Passphrase, []byte(cfg.AtRest.Salt), cfg.AtRest.Iterations, 32)
	fieldCipher, err := security.NewFieldCipher(fieldKey)
	if err != nil {
		return nil, fmt.Errorf("init field cipher: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool, fieldCipher)

	tokenTTL := cfg.Redis.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	tokenCache := redisrepo.NewTokenCacheRepository(redisClient.Client(), cfg.Redis.TokenPrefix, tokenTTL)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var notifier port.Notifier
	if cfg.SMTP.Host != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTP, log)
	} else {
		log.Info("smtp not configured, verification codes go to the log")
		notifier = email.NewLogNotifier(log)
	}

	accountService := usecase.NewAccountService(cfg, repos.Accounts, repos.Tokens, tokenCache, rateLimitStore, eventPublisher, security.DefaultPasswordValidator(), log)
	verificationService := usecase.NewVerificationService(cfg, repos.Accounts, notifier, eventPublisher, log)
	relationshipService := usecase.NewRelationshipService(repos.Accounts, repos.Relationships, eventPublisher, log)
	chatService := usecase.NewChatService(repos.Accounts, repos.Relationships, repos.Chats, eventPublisher, log)

	registry := ws.NewRegistry()
	handlers := ws.NewHandlers(accountService, verificationService, relationshipService, chatService, registry, log)

	server, err := ws.NewServer(cfg, keypair, handlers, registry, log,
		ws.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		ws.ReadinessCheck{Name: "redis", Check: redisClient.HealthCheck},
	)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init websocket server: %w", err)
	}

	return &Application{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		server:   server,
	}, nil
}

// Run serves until ctx ends, then releases every resource.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	a.logger.Info("starting messenger gateway",
		zap.String("env", a.cfg.App.Env),
		zap.String("host", a.cfg.App.Host),
		zap.Int("port", a.cfg.App.Port),
	)

	return a.server.Run(ctx)
}
