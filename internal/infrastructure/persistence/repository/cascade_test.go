package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/persistence/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyPackages fails the nth Delete or Update call
type flakyPackages struct {
	port.PackageRepository
	failOn       int
	calls        int
	failUpdateOn int
	updates      int
}

func (r *flakyPackages) Update(ctx context.Context, pkg *entity.Package) error {
	r.updates++
	if r.updates == r.failUpdateOn {
		return errors.New("database is locked")
	}
	return r.PackageRepository.Update(ctx, pkg)
}

func (r *flakyPackages) Delete(ctx context.Context, id string) error {
	r.calls++
	if r.calls == r.failOn {
		return errors.New("database is locked")
	}
	return r.PackageRepository.Delete(ctx, id)
}

type testClock struct{}

func (testClock) Now() time.Time { return testTime }

type testIDs struct{ n int }

func (g *testIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type zapService struct{ l *zap.SugaredLogger }

func (z zapService) Info(msg string, kv ...interface{})  { z.l.Infow(msg, kv...) }
func (z zapService) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }

func TestExpeditionDelete_SqliteAllOrNothing(t *testing.T) {
	db, logger := setupTestDB(t)
	f := seedFixtures(t, db, logger)
	ctx := context.Background()

	pkgRepo := &flakyPackages{PackageRepository: NewPackageRepository(db, logger)}
	expRepo := NewExpeditionRepository(db, logger)
	clientRepo := NewClientRepository(db, logger)
	catRepo := NewCategoryRepository(db, logger)
	logRepo := NewLogRepository(db, logger)
	tx := sqlite.NewDB(db, logger)
	ids := &testIDs{}
	svcLogger := zapService{l: logger.Sugar()}

	packages := service.NewPackageService(pkgRepo, expRepo, clientRepo, logRepo, tx, testClock{}, ids, svcLogger)
	expeditions := service.NewExpeditionService(expRepo, pkgRepo, clientRepo, catRepo, logRepo, tx, packages, testClock{}, ids, svcLogger)

	var created []string
	for i := 0; i < 3; i++ {
		pkg, err := packages.Create(ctx, "marta", service.CreatePackageInput{
			ExpeditionID: f.expedition.ID,
			ClientID:     f.client.ID,
			CategoryID:   f.category.ID,
		})
		require.NoError(t, err)
		_, err = packages.AddLine(ctx, "marta", pkg.ID, dec("50"), dec("916"))
		require.NoError(t, err)
		created = append(created, pkg.ID)
	}

	pkgRepo.failOn = 2
	err := expeditions.Delete(ctx, f.expedition.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrCascadeFailed)

	exp, err := expRepo.GetByID(ctx, f.expedition.ID)
	require.NoError(t, err)
	assert.NotNil(t, exp)
	for _, id := range created {
		pkg, err := pkgRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, pkg, "package %s must survive", id)

		entries, err := logRepo.ListByPackage(ctx, id)
		require.NoError(t, err)
		assert.Len(t, entries, 2, "log of %s must survive", id)
	}

	// a clean run removes everything
	pkgRepo.failOn = 0
	require.NoError(t, expeditions.Delete(ctx, f.expedition.ID))
	exp, err = expRepo.GetByID(ctx, f.expedition.ID)
	require.NoError(t, err)
	assert.Nil(t, exp)
	for _, id := range created {
		entries, err := logRepo.ListByPackage(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestExpeditionUpdate_SqliteRepriceAllOrNothing(t *testing.T) {
	db, logger := setupTestDB(t)
	f := seedFixtures(t, db, logger)
	ctx := context.Background()

	pkgRepo := &flakyPackages{PackageRepository: NewPackageRepository(db, logger)}
	expRepo := NewExpeditionRepository(db, logger)
	clientRepo := NewClientRepository(db, logger)
	logRepo := NewLogRepository(db, logger)
	tx := sqlite.NewDB(db, logger)
	ids := &testIDs{}
	svcLogger := zapService{l: logger.Sugar()}

	packages := service.NewPackageService(pkgRepo, expRepo, clientRepo, logRepo, tx, testClock{}, ids, svcLogger)
	expeditions := service.NewExpeditionService(expRepo, pkgRepo, clientRepo, NewCategoryRepository(db, logger), logRepo, tx, packages, testClock{}, ids, svcLogger)

	totals := map[string]string{}
	logCounts := map[string]int{}
	for i := 0; i < 3; i++ {
		pkg, err := packages.Create(ctx, "marta", service.CreatePackageInput{ExpeditionID: f.expedition.ID, ClientID: f.client.ID, CategoryID: f.category.ID})
		require.NoError(t, err)
		_, err = packages.AddLine(ctx, "marta", pkg.ID, dec("50"), dec("916"))
		require.NoError(t, err)
		fileID := fmt.Sprintf("file-%d", i)
		_, err = packages.AttachInvoice(ctx, "marta", pkg.ID, fileID)
		require.NoError(t, err)
		pkg, err = packages.StoreVerification(ctx, "marta", pkg.ID, fileID, &reconcile.Extraction{
			Total: decPtr("4300"),
			Lines: []entity.ExtractedLine{{Bruto: dec("50"), Ley: decPtr("916")}},
		})
		require.NoError(t, err)
		pkg, err = packages.Validate(ctx, "jefe", pkg.ID)
		require.NoError(t, err)

		totals[pkg.ID] = pkg.Verification.ComputedTotal.String()
		entries, err := logRepo.ListByPackage(ctx, pkg.ID)
		require.NoError(t, err)
		logCounts[pkg.ID] = len(entries)
	}

	pkgRepo.updates = 0
	pkgRepo.failUpdateOn = 2
	_, err := expeditions.Update(ctx, "marta", f.expedition.ID, service.ExpeditionInput{Name: "Mayo", DefaultUnitPrice: decPtr("120")})
	require.Error(t, err)

	exp, err := expRepo.GetByID(ctx, f.expedition.ID)
	require.NoError(t, err)
	require.NotNil(t, exp.DefaultUnitPrice)
	assert.True(t, exp.DefaultUnitPrice.Equal(dec("98.5")))

	for id, total := range totals {
		pkg, err := pkgRepo.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, pkg.Verification)
		assert.Equal(t, total, pkg.Verification.ComputedTotal.String(), "package %s", id)
		assert.True(t, pkg.Verification.Validated, "package %s", id)

		entries, err := logRepo.ListByPackage(ctx, id)
		require.NoError(t, err)
		assert.Len(t, entries, logCounts[id], "package %s", id)
	}
}

func TestPackageMutation_RollsBackWithLog(t *testing.T) {
	db, logger := setupTestDB(t)
	f := seedFixtures(t, db, logger)
	ctx := context.Background()

	logRepo := &failingLog{LogRepository: NewLogRepository(db, logger)}
	pkgRepo := NewPackageRepository(db, logger)
	tx := sqlite.NewDB(db, logger)
	packages := service.NewPackageService(pkgRepo, NewExpeditionRepository(db, logger), NewClientRepository(db, logger), logRepo, tx, testClock{}, &testIDs{}, zapService{l: logger.Sugar()})

	pkg, err := packages.Create(ctx, "marta", service.CreatePackageInput{ExpeditionID: f.expedition.ID, ClientID: f.client.ID, CategoryID: f.category.ID})
	require.NoError(t, err)

	logRepo.fail = true
	_, err = packages.AddLine(ctx, "marta", pkg.ID, dec("10"), dec("750"))
	require.Error(t, err)

	got, err := pkgRepo.GetByID(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Lines, "line must not be stored without its log entry")
	assert.Equal(t, int64(1), got.Version)
}

type failingLog struct {
	port.LogRepository
	fail bool
}

func (r *failingLog) Append(ctx context.Context, e *entity.LogEntry) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.LogRepository.Append(ctx, e)
}
