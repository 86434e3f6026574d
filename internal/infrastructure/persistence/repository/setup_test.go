package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/migrations"
	"github.com/garyjia/expedition-settlement/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestDB opens a migrated sqlite database in a temp dir
func setupTestDB(t *testing.T) (*sql.DB, *zap.Logger) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.NewMigrator(db, logger).RunMigrations(migrations.FS)
	require.NoError(t, err)

	return db.DB, logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var testTime = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

type fixtures struct {
	expedition *entity.Expedition
	client     *entity.Client
	category   *entity.Category
}

// seedFixtures inserts one expedition, client and category
func seedFixtures(t *testing.T, db *sql.DB, logger *zap.Logger) fixtures {
	t.Helper()
	ctx := context.Background()

	f := fixtures{
		expedition: &entity.Expedition{ID: "exp-1", Name: "Mayo", DefaultUnitPrice: decPtr("98.5"), CreatedAt: testTime, UpdatedAt: testTime},
		client:     &entity.Client{ID: "cli-1", Name: "Joyeria Sol", Policy: entity.ClientPolicy{DiscountStandard: dec("5"), DiscountFine: dec("3.5"), NegativeLinesExcludedFromWeight: true}, CreatedAt: testTime},
		category:   &entity.Category{ID: "cat-1", Name: "Oro 18k"},
	}
	require.NoError(t, NewExpeditionRepository(db, logger).Create(ctx, f.expedition))
	require.NoError(t, NewClientRepository(db, logger).Create(ctx, f.client))
	require.NoError(t, NewCategoryRepository(db, logger).Create(ctx, f.category))
	return f
}

func newTestPackage(id string, f fixtures) *entity.Package {
	return &entity.Package{
		ID:              id,
		ExpeditionID:    f.expedition.ID,
		ClientID:        f.client.ID,
		CategoryID:      f.category.ID,
		Number:          "001",
		DiscountPercent: dec("5"),
		TaxPercent:      dec("4.5"),
		Status:          entity.StatusInTransit,
		PaymentStatus:   entity.PaymentPending,
		Version:         1,
		CreatedAt:       testTime,
		UpdatedAt:       testTime,
	}
}
