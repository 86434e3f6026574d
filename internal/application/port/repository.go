package port

import (
	"context"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
)

// PackageRepository defines persistence operations for Package.
// Lines, comments and the verification record are stored with the package.
type PackageRepository interface {
	Create(ctx context.Context, pkg *entity.Package) error
	GetByID(ctx context.Context, id string) (*entity.Package, error)
	ListByExpedition(ctx context.Context, expeditionID string) ([]*entity.Package, error)
	Update(ctx context.Context, pkg *entity.Package) error
	Delete(ctx context.Context, id string) error
}

// ExpeditionRepository defines persistence operations for Expedition
type ExpeditionRepository interface {
	Create(ctx context.Context, exp *entity.Expedition) error
	GetByID(ctx context.Context, id string) (*entity.Expedition, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Expedition, error)
	Update(ctx context.Context, exp *entity.Expedition) error
	Delete(ctx context.Context, id string) error
}

// ClientRepository defines persistence operations for Client
type ClientRepository interface {
	Create(ctx context.Context, client *entity.Client) error
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	List(ctx context.Context) ([]*entity.Client, error)
}

// CategoryRepository defines persistence operations for Category
type CategoryRepository interface {
	Create(ctx context.Context, category *entity.Category) error
	GetByID(ctx context.Context, id string) (*entity.Category, error)
	List(ctx context.Context) ([]*entity.Category, error)
}

// LogRepository is the append-only audit log, keyed by package and
// expedition id. Entries are never updated; DeleteByExpedition exists only for
// the expedition cascade delete.
type LogRepository interface {
	Append(ctx context.Context, entry *entity.LogEntry) error
	ListByPackage(ctx context.Context, packageID string) ([]*entity.LogEntry, error)
	DeleteByExpedition(ctx context.Context, expeditionID string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
