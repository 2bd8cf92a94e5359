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

	"github.com/gin-gonic/gin"

	"github.com/allisson/provenance/internal/config"
	"github.com/allisson/provenance/internal/database"
	"github.com/allisson/provenance/internal/http"
	"github.com/allisson/provenance/internal/metrics"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
	wormRepository "github.com/allisson/provenance/internal/worm/repository"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	store           wormDomain.Store
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Ledger, keys and anchoring (di_ledger.go)
	ledgerComponents

	// Policies, evidence and capsules (di_evidence.go)
	evidenceComponents

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// lifetime is cancelled by Shutdown and bounds background work started by components.
	lifetime       context.Context
	cancelLifetime context.CancelFunc

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	lifetimeInit        sync.Once
	loggerInit          sync.Once
	dbInit              sync.Once
	storeInit           sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

func (c *Container) lifetimeContext() context.Context {
	c.lifetimeInit.Do(func() {
		c.lifetime, c.cancelLifetime = context.WithCancel(context.Background())
	})
	return c.lifetime
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

// DB returns the database connection used by the SQL store drivers.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// Store returns the WORM store selected by STORE_DRIVER.
func (c *Container) Store() (wormDomain.Store, error) {
	var err error
	c.storeInit.Do(func() {
		c.store, err = c.initStore()
		if err != nil {
			c.initErrors["store"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["store"]; exists {
		return nil, storedErr
	}
	return c.store, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are
// disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the evidence API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.cancelLifetime != nil {
		c.cancelLifetime()
	}

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	shutdownErrors = append(shutdownErrors, c.closeEvidenceComponents()...)
	shutdownErrors = append(shutdownErrors, c.closeLedgerComponents()...)

	// The store outlives everything that writes to it.
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("store close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(shutdownErrors...))
	}

	return nil
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

// initDB opens the database for the SQL store drivers.
func (c *Container) initDB() (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch c.config.StoreDriver {
	case config.StoreDriverSQLite:
		db, err = database.ConnectSQLite(c.config.StorePath)
	case config.StoreDriverPostgres, config.StoreDriverMySQL:
		db, err = database.Connect(database.Config{
			Driver:             c.config.StoreDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("store driver %s does not use a database", c.config.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initStore opens the WORM store. SQL stores are migrated before use.
func (c *Container) initStore() (wormDomain.Store, error) {
	switch c.config.StoreDriver {
	case config.StoreDriverMemory:
		return wormRepository.NewMemoryStore(), nil
	case config.StoreDriverBadger:
		cfg := wormRepository.DefaultBadgerConfig(c.config.StorePath)
		cfg.Logger = c.Logger()
		store, err := wormRepository.OpenBadgerStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	case config.StoreDriverSQLite, config.StoreDriverPostgres, config.StoreDriverMySQL:
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for store: %w", err)
		}
		if err := wormRepository.Migrate(db, c.config.StoreDriver, c.Logger()); err != nil {
			return nil, fmt.Errorf("failed to migrate store: %w", err)
		}
		switch c.config.StoreDriver {
		case config.StoreDriverSQLite:
			return wormRepository.NewSQLiteStore(db), nil
		case config.StoreDriverPostgres:
			return wormRepository.NewPostgreSQLStore(db), nil
		default:
			return wormRepository.NewMySQLStore(db), nil
		}
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", c.config.StoreDriver)
	}
}

// initMetricsProvider creates the Prometheus-backed provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder and registers the ledger gauge.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for metrics: %w", err)
	}
	if err := metrics.RegisterLedgerGauges(provider.MeterProvider(), c.config.MetricsNamespace, ledger); err != nil {
		return nil, fmt.Errorf("failed to register ledger gauges: %w", err)
	}

	return businessMetrics, nil
}

// initHTTPServer creates the API server with the evidence routes mounted.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()
	gin.SetMode(c.config.GetGinMode())

	handler, err := c.EvidenceHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence handler for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for http server: %w", err)
	}
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for http server: %w", err)
	}

	server := http.NewServer(
		c.config.ServerHost,
		c.config.ServerPort,
		logger,
		map[string]http.ReadinessCheck{
			"ledger": func(context.Context) error {
				_, _, err := ledger.Snapshot()
				return err
			},
			"signing_key": func(context.Context) error {
				_, err := keyManager.ActiveKey(c.config.AnchorKeyPurpose)
				return err
			},
		},
	)

	// Middleware goroutines stop with Shutdown through the container context.
	server.SetupRouter(c.lifetimeContext(), http.RouterConfig{
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
		MetricsProvider:         provider,
		MetricsNamespace:        c.config.MetricsNamespace,
	}, handler)

	return server, nil
}

// initMetricsServer creates the metrics server. Metrics must be enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("metrics are disabled")
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
