// Package container provides dependency injection and lifecycle management
// for the settlement service.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/config"
	"github.com/garyjia/expedition-settlement/internal/domain/event"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/report"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External and storage
	external *ExternalBundle
	storage  port.InvoiceFileStorage
	workbook *report.ExpeditionWorkbook

	// Application
	services *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Package    port.PackageRepository
	Expedition port.ExpeditionRepository
	Client     port.ClientRepository
	Category   port.CategoryRepository
	Log        port.LogRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Package      service.PackageService
	Expedition   service.ExpeditionService
	Verification service.VerificationService
	Catalog      service.CatalogService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Database, migrations and repositories
// 2. External clients (OpenAI, Lark)
// 3. Invoice storage and report writer
// 4. Application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	external, err := ProvideExternal(c.config, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.external = external

	store, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.storage = store
	c.workbook = report.NewExpeditionWorkbook(c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:     c.repositories,
		TxManager: c.db,
		Storage:   c.storage,
		External:  c.external,
		Logger:    c.logger,
	})
	if err != nil {
		c.sqlDB.Close()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close releases the database. It is safe to call once.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	c.closed.Store(true)
	c.ready.Store(false)

	if c.external != nil && c.external.Dispatcher != nil {
		if err := c.external.Dispatcher.Close(); err != nil {
			c.logger.Warn("Failed to close event dispatcher", zap.Error(err))
		}
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			return fmt.Errorf("close database: %w", err)
		}
		c.logger.Info("Database closed")
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.sqlDB == nil || c.closed.Load() {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	} else if err := c.sqlDB.PingContext(ctx); err != nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		status.Overall = false
	} else {
		status.Components["database"] = ComponentHealth{Healthy: true}
	}

	extraction := ComponentHealth{Healthy: true}
	if c.config.OpenAI.APIKey == "" {
		extraction.Message = "disabled"
	}
	status.Components["extraction"] = extraction

	notifications := ComponentHealth{Healthy: true}
	switch {
	case !c.config.Lark.Enabled():
		notifications.Message = "disabled"
	case c.external != nil && c.external.Dispatcher != nil:
		stats := c.external.Dispatcher.Stats()
		notifications.Message = fmt.Sprintf("%d handler(s), %d queued, %d failed",
			len(c.external.Dispatcher.Handlers(event.TypeDiscrepancyDetected)), stats.Queued, stats.Failed)
	}
	status.Components["notifications"] = notifications

	return status
}

// initDatabase opens the database and creates all repositories.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workbook returns the spreadsheet export writer.
func (c *Container) Workbook() *report.ExpeditionWorkbook {
	return c.workbook
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the container's logger in key-value form.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
