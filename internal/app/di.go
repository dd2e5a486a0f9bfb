// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/allisson/identity/internal/config"
	"github.com/allisson/identity/internal/database"
	"github.com/allisson/identity/internal/http"
	"github.com/allisson/identity/internal/metrics"
	"github.com/allisson/identity/internal/password"
	recoveryHTTP "github.com/allisson/identity/internal/recovery/http"
	recoveryUseCase "github.com/allisson/identity/internal/recovery/usecase"
	userHTTP "github.com/allisson/identity/internal/user/http"
	userRepository "github.com/allisson/identity/internal/user/repository"
	userUseCase "github.com/allisson/identity/internal/user/usecase"
)

// userStore is the user persistence surface shared by registration and recovery.
type userStore interface {
	userUseCase.UserRepository
	recoveryUseCase.UserRepository
}

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Background work started by components (rate limiter cleanup) stops when ctx is canceled.
	ctx    context.Context
	cancel context.CancelFunc

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	clock           clockwork.Clock
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Managers
	txManager database.TxManager

	// Repositories
	userRepo userStore

	// Services
	passwordHasher password.Hasher

	// Use Cases
	userUseCase     userUseCase.UseCase
	recoveryUseCase recoveryUseCase.UseCase

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	tokenComponents
	outboxComponents

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	clockInit           sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	txManagerInit       sync.Once
	userRepoInit        sync.Once
	passwordHasherInit  sync.Once
	userUseCaseInit     sync.Once
	recoveryUseCaseInit sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Clock returns the wall clock shared by every time-dependent component.
func (c *Container) Clock() clockwork.Clock {
	c.clockInit.Do(func() {
		c.clock = clockwork.NewRealClock()
	})
	return c.clock
}

// initOnce runs init once and remembers its error under name.
func (c *Container) initOnce(once *sync.Once, name string, init func() error) error {
	once.Do(func() {
		if err := init(); err != nil {
			c.mu.Lock()
			c.initErrors[name] = err
			c.mu.Unlock()
		}
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErrors[name]
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	err := c.initOnce(&c.dbInit, "db", func() (err error) {
		c.db, err = c.initDB()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	err := c.initOnce(&c.txManagerInit, "txManager", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for tx manager: %w", err)
		}
		c.txManager = database.NewTxManager(db)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	err := c.initOnce(&c.metricsProviderInit, "metricsProvider", func() (err error) {
		if !c.config.MetricsEnabled {
			return nil
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			return fmt.Errorf("failed to create metrics provider: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op recorder is returned when
// metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	err := c.initOnce(&c.businessMetricsInit, "businessMetrics", func() (err error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return err
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return nil
		}
		c.businessMetrics, err = metrics.NewBusinessMetrics(provider)
		if err != nil {
			return fmt.Errorf("failed to create business metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.businessMetrics, nil
}

// UserRepository returns the user repository for the configured driver.
func (c *Container) UserRepository() (userStore, error) {
	err := c.initOnce(&c.userRepoInit, "userRepo", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for user repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverMySQL:
			c.userRepo = userRepository.NewMySQLUserRepository(db)
		case database.DriverPostgres:
			c.userRepo = userRepository.NewPostgreSQLUserRepository(db)
		default:
			return fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.userRepo, nil
}

// PasswordHasher returns the argon2id hasher, peppered when a pepper is configured.
func (c *Container) PasswordHasher() (password.Hasher, error) {
	err := c.initOnce(&c.passwordHasherInit, "passwordHasher", func() error {
		pepper, err := password.LoadPepper(c.ctx, password.PepperConfig{
			Plain:      c.config.PasswordPepper,
			Ciphertext: c.config.PasswordPepperCiphertext,
			KMSKeyURI:  c.config.KMSKeyURI,
		})
		if err != nil {
			return fmt.Errorf("failed to load password pepper: %w", err)
		}

		c.passwordHasher, err = password.NewHasher(password.WithPepper(pepper))
		if err != nil {
			return fmt.Errorf("failed to create password hasher: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.passwordHasher, nil
}

// RecoveryUseCase returns the password reset and email verification use case.
func (c *Container) RecoveryUseCase() (recoveryUseCase.UseCase, error) {
	err := c.initOnce(&c.recoveryUseCaseInit, "recoveryUseCase", func() error {
		txManager, err := c.TxManager()
		if err != nil {
			return fmt.Errorf("failed to get tx manager for recovery use case: %w", err)
		}
		userRepo, err := c.UserRepository()
		if err != nil {
			return fmt.Errorf("failed to get user repository for recovery use case: %w", err)
		}
		authority, err := c.TokenAuthority()
		if err != nil {
			return fmt.Errorf("failed to get token authority for recovery use case: %w", err)
		}
		outboxWriter, err := c.OutboxWriter()
		if err != nil {
			return fmt.Errorf("failed to get outbox writer for recovery use case: %w", err)
		}
		hasher, err := c.PasswordHasher()
		if err != nil {
			return fmt.Errorf("failed to get password hasher for recovery use case: %w", err)
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return err
		}

		useCase := recoveryUseCase.NewRecoveryUseCase(
			recoveryUseCase.Config{PublicBaseURL: c.config.PublicBaseURL},
			txManager,
			userRepo,
			authority,
			outboxWriter,
			hasher,
			c.Clock(),
			c.Logger(),
		)
		c.recoveryUseCase = recoveryUseCase.NewRecoveryUseCaseWithMetrics(useCase, businessMetrics)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.recoveryUseCase, nil
}

// UserUseCase returns the user registration use case.
func (c *Container) UserUseCase() (userUseCase.UseCase, error) {
	err := c.initOnce(&c.userUseCaseInit, "userUseCase", func() error {
		txManager, err := c.TxManager()
		if err != nil {
			return fmt.Errorf("failed to get tx manager for user use case: %w", err)
		}
		userRepo, err := c.UserRepository()
		if err != nil {
			return fmt.Errorf("failed to get user repository for user use case: %w", err)
		}
		outboxWriter, err := c.OutboxWriter()
		if err != nil {
			return fmt.Errorf("failed to get outbox writer for user use case: %w", err)
		}
		hasher, err := c.PasswordHasher()
		if err != nil {
			return fmt.Errorf("failed to get password hasher for user use case: %w", err)
		}
		recovery, err := c.RecoveryUseCase()
		if err != nil {
			return fmt.Errorf("failed to get recovery use case for user use case: %w", err)
		}

		c.userUseCase = userUseCase.NewUserUseCase(
			txManager,
			userRepo,
			outboxWriter,
			hasher,
			recovery,
			c.Clock(),
			c.Logger(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.userUseCase, nil
}

// HTTPServer returns the HTTP server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	err := c.initOnce(&c.httpServerInit, "httpServer", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for http server: %w", err)
		}
		users, err := c.UserUseCase()
		if err != nil {
			return fmt.Errorf("failed to get user use case for http server: %w", err)
		}
		recovery, err := c.RecoveryUseCase()
		if err != nil {
			return fmt.Errorf("failed to get recovery use case for http server: %w", err)
		}
		provider, err := c.MetricsProvider()
		if err != nil {
			return err
		}

		logger := c.Logger()
		server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
		server.SetupRouter(
			c.ctx,
			c.config,
			userHTTP.NewUserHandler(users, logger),
			recoveryHTTP.NewRecoveryHandler(recovery, logger),
			provider,
		)
		c.httpServer = server
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	err := c.initOnce(&c.metricsServerInit, "metricsServer", func() error {
		provider, err := c.MetricsProvider()
		if err != nil {
			return err
		}
		if provider == nil {
			return nil
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.auditCloser != nil {
		if err := c.auditCloser(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("audit sink close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
