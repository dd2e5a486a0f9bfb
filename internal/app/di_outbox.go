package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/allisson/identity/internal/audit"
	"github.com/allisson/identity/internal/database"
	"github.com/allisson/identity/internal/notification"
	outboxRepository "github.com/allisson/identity/internal/outbox/repository"
	outboxUseCase "github.com/allisson/identity/internal/outbox/usecase"
	tokenDomain "github.com/allisson/identity/internal/token/domain"
	tokenRepository "github.com/allisson/identity/internal/token/repository"
	tokenService "github.com/allisson/identity/internal/token/service"
	tokenUseCase "github.com/allisson/identity/internal/token/usecase"
)

// Audit sink kinds accepted by AUDIT_SINK.
const (
	AuditSinkLog  = "log"
	AuditSinkNATS = "nats"
)

type tokenComponents struct {
	tokenRepo     tokenUseCase.TokenRepository
	authority     tokenUseCase.Authority
	tokenRepoInit sync.Once
	authorityInit sync.Once
}

type outboxComponents struct {
	outboxRepo         outboxUseCase.MessageRepository
	outboxWriter       outboxUseCase.Writer
	notificationClient *notification.Client
	auditSink          outboxUseCase.AuditSink
	auditCloser        func() error
	relay              *outboxUseCase.Relay

	outboxRepoInit         sync.Once
	outboxWriterInit       sync.Once
	notificationClientInit sync.Once
	auditSinkInit          sync.Once
	relayInit              sync.Once
}

// TokenRepository returns the secure token repository for the configured driver.
func (c *Container) TokenRepository() (tokenUseCase.TokenRepository, error) {
	err := c.initOnce(&c.tokenRepoInit, "tokenRepo", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for token repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverMySQL:
			c.tokenRepo = tokenRepository.NewMySQLTokenRepository(db)
		case database.DriverPostgres:
			c.tokenRepo = tokenRepository.NewPostgreSQLTokenRepository(db)
		default:
			return fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.tokenRepo, nil
}

// TokenAuthority returns the secure token authority wrapped with business metrics.
func (c *Container) TokenAuthority() (tokenUseCase.Authority, error) {
	err := c.initOnce(&c.authorityInit, "authority", func() error {
		tokenRepo, err := c.TokenRepository()
		if err != nil {
			return err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return err
		}

		authority := tokenUseCase.NewAuthority(
			c.tokenConfig(),
			tokenRepo,
			tokenService.NewSHA256Generator(),
			c.Clock(),
		)
		c.authority = tokenUseCase.NewAuthorityWithMetrics(authority, businessMetrics)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.authority, nil
}

func (c *Container) tokenConfig() tokenUseCase.Config {
	cfg := tokenUseCase.DefaultConfig()
	overrides := map[tokenDomain.Kind]time.Duration{
		tokenDomain.KindPasswordReset:     c.config.PasswordResetTokenTTL,
		tokenDomain.KindEmailVerification: c.config.EmailVerificationTokenTTL,
	}
	for kind, ttl := range overrides {
		policy := cfg.Policies[kind]
		if ttl > 0 {
			policy.TTL = ttl
		}
		if c.config.TokenMaxPending > 0 {
			policy.MaxPending = c.config.TokenMaxPending
		}
		cfg.Policies[kind] = policy
	}
	return cfg
}

func (c *Container) relayConfig() outboxUseCase.RelayConfig {
	cfg := outboxUseCase.DefaultRelayConfig()
	if c.config.RelayInitialDelay > 0 {
		cfg.InitialDelay = c.config.RelayInitialDelay
	}
	if c.config.RelayInterval > 0 {
		cfg.Interval = c.config.RelayInterval
	}
	if c.config.RelayBatchSize > 0 {
		cfg.BatchSize = c.config.RelayBatchSize
	}
	if c.config.RelayDispatchTimeout > 0 {
		cfg.DispatchTimeout = c.config.RelayDispatchTimeout
	}
	return cfg
}

// OutboxRepository returns the outbox message repository for the configured driver.
func (c *Container) OutboxRepository() (outboxUseCase.MessageRepository, error) {
	err := c.initOnce(&c.outboxRepoInit, "outboxRepo", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for outbox repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverMySQL:
			c.outboxRepo = outboxRepository.NewMySQLOutboxRepository(db)
		case database.DriverPostgres:
			c.outboxRepo = outboxRepository.NewPostgreSQLOutboxRepository(db)
		default:
			return fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.outboxRepo, nil
}

// OutboxWriter returns the writer used to append messages inside a unit of work.
func (c *Container) OutboxWriter() (outboxUseCase.Writer, error) {
	err := c.initOnce(&c.outboxWriterInit, "outboxWriter", func() error {
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			return err
		}
		c.outboxWriter = outboxUseCase.NewWriter(outboxRepo, c.Clock())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.outboxWriter, nil
}

// NotificationClient returns the client for the notification dispatch service.
func (c *Container) NotificationClient() *notification.Client {
	c.notificationClientInit.Do(func() {
		c.notificationClient = notification.NewClient(notification.Config{
			BaseURL:  c.config.NotificationURL,
			APIKey:   c.config.NotificationAPIKey,
			Timeout:  c.config.NotificationTimeout,
			RetryMax: c.config.NotificationRetryMax,
		}, c.Logger())
	})
	return c.notificationClient
}

// AuditSink returns the configured audit sink.
func (c *Container) AuditSink() (outboxUseCase.AuditSink, error) {
	err := c.initOnce(&c.auditSinkInit, "auditSink", func() error {
		switch c.config.AuditSink {
		case "", AuditSinkLog:
			c.auditSink = audit.NewLogSink(c.Logger())
		case AuditSinkNATS:
			sink, err := audit.NewNATSSink(c.config.NATSURL, c.config.NATSSubjectPrefix, c.Logger())
			if err != nil {
				return fmt.Errorf("failed to create nats audit sink: %w", err)
			}
			c.mu.Lock()
			c.auditCloser = sink.Close
			c.mu.Unlock()
			c.auditSink = sink
		default:
			return fmt.Errorf("unsupported audit sink: %s", c.config.AuditSink)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.auditSink, nil
}

// Relay returns the outbox relay.
func (c *Container) Relay() (*outboxUseCase.Relay, error) {
	err := c.initOnce(&c.relayInit, "relay", func() error {
		txManager, err := c.TxManager()
		if err != nil {
			return fmt.Errorf("failed to get tx manager for relay: %w", err)
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			return fmt.Errorf("failed to get outbox repository for relay: %w", err)
		}
		auditSink, err := c.AuditSink()
		if err != nil {
			return fmt.Errorf("failed to get audit sink for relay: %w", err)
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return err
		}

		logger := c.Logger()
		c.relay = outboxUseCase.NewRelay(
			c.relayConfig(),
			txManager,
			outboxRepo,
			outboxUseCase.NewDefaultRouter(c.NotificationClient(), auditSink, logger),
			c.Clock(),
			businessMetrics,
			logger,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.relay, nil
}
