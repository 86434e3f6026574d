package service

import (
	"context"
	"testing"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedExpedition creates an expedition priced at 100 with n packages of one
// 100 g line at 750. Only the first package has its own price.
func seedExpedition(t *testing.T, h *harness, n int) (*entity.Expedition, []*entity.Package) {
	t.Helper()
	ctx := context.Background()

	client, err := h.catalog.CreateClient(ctx, "Joyeria Sol", entity.DefaultClientPolicy(), "")
	require.NoError(t, err)
	cat, err := h.catalog.CreateCategory(ctx, "Oro 18k")
	require.NoError(t, err)
	exp, err := h.expeditions.Create(ctx, ExpeditionInput{Name: "Abril", DefaultUnitPrice: decPtr("100"), InsuranceLimit: decPtr("50000")})
	require.NoError(t, err)

	var pkgs []*entity.Package
	for i := 0; i < n; i++ {
		in := CreatePackageInput{ExpeditionID: exp.ID, ClientID: client.ID, CategoryID: cat.ID}
		if i == 0 {
			in.UnitPriceFine = decPtr("100")
		}
		pkg, err := h.packages.Create(ctx, actor, in)
		require.NoError(t, err)
		pkg, err = h.packages.AddLine(ctx, actor, pkg.ID, dec("100"), dec("750"))
		require.NoError(t, err)
		pkgs = append(pkgs, pkg)
	}
	return exp, pkgs
}

func TestExpeditionService_Create_Validation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tests := []struct {
		name string
		in   ExpeditionInput
	}{
		{"empty name", ExpeditionInput{Name: "  "}},
		{"zero price", ExpeditionInput{Name: "x", DefaultUnitPrice: decPtr("0")}},
		{"negative limit", ExpeditionInput{Name: "x", InsuranceLimit: decPtr("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.expeditions.Create(ctx, tt.in)
			assert.ErrorIs(t, err, entity.ErrInvalidInput)
		})
	}
}

func TestExpeditionService_Delete_Cascade(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, pkgs := seedExpedition(t, h, 3)

	require.NoError(t, h.expeditions.Delete(ctx, exp.ID))

	_, err := h.expeditions.Get(ctx, exp.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	for _, p := range pkgs {
		_, err := h.packages.Get(ctx, p.ID)
		assert.ErrorIs(t, err, entity.ErrNotFound)
		assert.Empty(t, h.st.logsFor(p.ID))
	}
}

func TestExpeditionService_Delete_AllOrNothing(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, pkgs := seedExpedition(t, h, 3)
	logsBefore := len(h.st.logs)

	h.st.failDeletePackage = 2
	err := h.expeditions.Delete(ctx, exp.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrCascadeFailed)

	_, err = h.expeditions.Get(ctx, exp.ID)
	assert.NoError(t, err)
	for _, p := range pkgs {
		_, err := h.packages.Get(ctx, p.ID)
		assert.NoError(t, err, "package %s must survive a failed cascade", p.ID)
	}
	assert.Len(t, h.st.logs, logsBefore)
}

func TestExpeditionService_Delete_RemovesLogsOfDeletedPackages(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	other := seedPackage(t, h)
	exp, pkgs := seedExpedition(t, h, 2)

	require.NoError(t, h.packages.Delete(ctx, actor, pkgs[1].ID))
	gone := h.st.logsFor(pkgs[1].ID)
	require.NotEmpty(t, gone)
	for _, e := range gone {
		assert.Equal(t, exp.ID, e.ExpeditionID)
	}

	require.NoError(t, h.expeditions.Delete(ctx, exp.ID))

	assert.Empty(t, h.st.logsFor(pkgs[0].ID))
	assert.Empty(t, h.st.logsFor(pkgs[1].ID))
	assert.NotEmpty(t, h.st.logsFor(other.ID))
}

func TestExpeditionService_Delete_NotFound(t *testing.T) {
	h := newHarness()
	err := h.expeditions.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestExpeditionService_Update_RepricesFallbackPackages(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, pkgs := seedExpedition(t, h, 2)
	own, fallback := pkgs[0], pkgs[1]

	verifyPackage(t, h, own.ID, "7500")
	verifyPackage(t, h, fallback.ID, "7500")
	ownLogs := len(h.st.logsFor(own.ID))
	fallbackLogs := len(h.st.logsFor(fallback.ID))

	_, err := h.expeditions.Update(ctx, actor, exp.ID, ExpeditionInput{Name: "Abril", DefaultUnitPrice: decPtr("120"), InsuranceLimit: decPtr("50000")})
	require.NoError(t, err)

	view, err := h.packages.Get(ctx, fallback.ID)
	require.NoError(t, err)
	assert.True(t, view.Settlement.IsEstimated)
	assert.True(t, view.Package.Verification.ComputedTotal.Equal(dec("9000")))
	assert.True(t, view.Package.Verification.Delta.Equal(dec("-1500")))

	logs := h.st.logsFor(fallback.ID)
	require.Len(t, logs, fallbackLogs+2)
	assert.Equal(t, entity.LogChangePrice, logs[fallbackLogs].Kind)
	assert.Equal(t, entity.LogSystemRecalculated, logs[fallbackLogs+1].Kind)

	assert.Len(t, h.st.logsFor(own.ID), ownLogs)

	// same price again changes nothing
	_, err = h.expeditions.Update(ctx, actor, exp.ID, ExpeditionInput{Name: "Abril II", DefaultUnitPrice: decPtr("120")})
	require.NoError(t, err)
	assert.Len(t, h.st.logsFor(fallback.ID), fallbackLogs+2)
}

func TestExpeditionService_Update_RollsBackWhenRepriceFails(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, pkgs := seedExpedition(t, h, 4)
	fallback := pkgs[1:]

	for _, p := range fallback {
		verifyPackage(t, h, p.ID, "7500")
		_, err := h.packages.Validate(ctx, "jefe", p.ID)
		require.NoError(t, err)
	}
	logsBefore := len(h.st.logs)

	h.st.updateCalls = 0
	h.st.failUpdatePackage = 2
	_, err := h.expeditions.Update(ctx, actor, exp.ID, ExpeditionInput{Name: "Abril", DefaultUnitPrice: decPtr("120")})
	require.Error(t, err)

	stored, err := h.expeditions.Get(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DefaultUnitPrice)
	assert.True(t, stored.DefaultUnitPrice.Equal(dec("100")))
	assert.NotNil(t, stored.InsuranceLimit)

	for _, p := range fallback {
		view, err := h.packages.Get(ctx, p.ID)
		require.NoError(t, err)
		rec := view.Package.Verification
		require.NotNil(t, rec)
		assert.True(t, rec.Validated, "package %s", p.ID)
		assert.True(t, rec.ComputedTotal.Equal(dec("7500")), "package %s", p.ID)
		assert.True(t, rec.Delta.IsZero(), "package %s", p.ID)
	}
	assert.Len(t, h.st.logs, logsBefore)

	h.st.failUpdatePackage = 0
	_, err = h.expeditions.Update(ctx, actor, exp.ID, ExpeditionInput{Name: "Abril", DefaultUnitPrice: decPtr("120")})
	require.NoError(t, err)
	for _, p := range fallback {
		view, err := h.packages.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, view.Package.Verification.Validated)
	}
}

func TestExpeditionService_Summary(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, _ := seedExpedition(t, h, 2)

	summary, err := h.expeditions.Summary(ctx, exp.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PackageCount)
	assert.Equal(t, 2, summary.PricedCount)
	assert.True(t, summary.InvoiceTotal.Equal(dec("15000")))
	assert.True(t, summary.EstimatedInvoiceTotal.Equal(dec("7500")))
	assert.True(t, summary.HasEstimates())
	require.Len(t, summary.ByCategory, 1)
	assert.Equal(t, "Oro 18k", summary.ByCategory[0].Label)
	require.Len(t, summary.ByClient, 1)
	assert.Equal(t, "Joyeria Sol", summary.ByClient[0].Label)
	require.NotNil(t, summary.InsuranceRatio)
}

func TestExpeditionService_ReferencePrice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	exp, pkgs := seedExpedition(t, h, 3)

	ref, err := h.expeditions.ReferencePrice(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, pkgs[0].ID, ref.PackageID)

	_, err = h.packages.SetUnitPrice(ctx, actor, pkgs[2].ID, decPtr("104.5"))
	require.NoError(t, err)
	_, err = h.packages.SetUnitPrice(ctx, actor, pkgs[1].ID, decPtr("99"))
	require.NoError(t, err)

	ref, err = h.expeditions.ReferencePrice(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, pkgs[2].ID, ref.PackageID)
	assert.True(t, ref.Price.Equal(dec("104.5")))

	_, err = h.expeditions.ReferencePrice(ctx, "empty")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
