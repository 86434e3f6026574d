package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expedition-settlement/internal/application/dispatcher"
	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/config"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	infraLark "github.com/garyjia/expedition-settlement/internal/infrastructure/external/lark"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/external/openai"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/storage"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/system"
	"github.com/garyjia/expedition-settlement/migrations"
	"github.com/garyjia/expedition-settlement/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the AI extractor and the optional notifier.
// Dispatcher is set only when notifications are enabled.
type ExternalBundle struct {
	Extractor  port.InvoiceExtractor
	Notifier   port.DiscrepancyNotifier
	Dispatcher *dispatcher.Dispatcher
}

// ServiceDeps groups the inputs of ProvideServices.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Storage   port.InvoiceFileStorage
	External  *ExternalBundle
	Logger    *zap.Logger
}

// ProvideDatabase opens the SQLite database and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Package:    repository.NewPackageRepository(sqlDB, logger),
		Expedition: repository.NewExpeditionRepository(sqlDB, logger),
		Client:     repository.NewClientRepository(sqlDB, logger),
		Category:   repository.NewCategoryRepository(sqlDB, logger),
		Log:        repository.NewLogRepository(sqlDB, logger),
	}, nil
}

// ProvideExternal creates the OpenAI extractor and, when credentials are set,
// the Lark notifier. Without an OpenAI key verification requests fail with
// ErrExtractionFailed instead of blocking startup.
func ProvideExternal(cfg *config.Config, logger *zap.Logger) (*ExternalBundle, error) {
	bundle := &ExternalBundle{}

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OpenAI API key not configured, invoice verification disabled")
		bundle.Extractor = unavailableExtractor{}
	} else {
		prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
		if err != nil {
			logger.Warn("Using built-in extraction prompts",
				zap.String("path", cfg.OpenAI.PromptsPath),
				zap.Error(err))
			prompts = openai.DefaultPrompts()
		}
		bundle.Extractor = timeoutExtractor{
			next:    openai.NewExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, prompts, logger),
			timeout: cfg.OpenAI.Timeout,
		}
	}

	if cfg.Lark.Enabled() {
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
		}, logger)
		d := dispatcher.NewDispatcher(
			dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("events")}),
			dispatcher.WithWorkers(2),
			dispatcher.WithRetry(3, 2*time.Second),
		)
		bundle.Dispatcher = d
		bundle.Notifier = dispatcher.NewAsyncNotifier(d, infraLark.NewNotifier(client, logger))
	} else {
		logger.Info("Lark credentials not configured, discrepancy notifications disabled")
	}

	return bundle, nil
}

// ProvideStorage creates the invoice file storage.
func ProvideStorage(cfg *config.StorageConfig, logger *zap.Logger) (port.InvoiceFileStorage, error) {
	if cfg == nil || cfg.InvoiceDir == "" {
		return nil, fmt.Errorf("storage.invoice_dir is required")
	}
	return storage.NewLocalInvoiceStorage(cfg.InvoiceDir, logger), nil
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.External == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}

	log := &zapLoggerAdapter{logger: deps.Logger}
	clock := system.Clock{}
	ids := system.UUIDv7Generator{}
	r := deps.Repos

	packages := service.NewPackageService(r.Package, r.Expedition, r.Client, r.Log, deps.TxManager, clock, ids, log)

	return &ServiceBundle{
		Package:      packages,
		Expedition:   service.NewExpeditionService(r.Expedition, r.Package, r.Client, r.Category, r.Log, deps.TxManager, packages, clock, ids, log),
		Verification: service.NewVerificationService(packages, r.Client, deps.Storage, deps.External.Extractor, deps.External.Notifier, log),
		Catalog:      service.NewCatalogService(r.Client, r.Category, clock, ids, log),
	}, nil
}

// unavailableExtractor stands in when no OpenAI key is configured.
type unavailableExtractor struct{}

func (unavailableExtractor) ExtractInvoice(context.Context, []byte, string) (*reconcile.Extraction, error) {
	return nil, fmt.Errorf("invoice extraction is not configured")
}

// timeoutExtractor bounds each extraction call.
type timeoutExtractor struct {
	next    port.InvoiceExtractor
	timeout time.Duration
}

func (e timeoutExtractor) ExtractInvoice(ctx context.Context, file []byte, mimeType string) (*reconcile.Extraction, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.next.ExtractInvoice(ctx, file, mimeType)
}
