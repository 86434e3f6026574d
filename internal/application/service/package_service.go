package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	"github.com/garyjia/expedition-settlement/internal/domain/settlement"
	"github.com/garyjia/expedition-settlement/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// CreatePackageInput holds the fields of a new package
type CreatePackageInput struct {
	ExpeditionID    string
	ClientID        string
	CategoryID      string
	Number          string
	DiscountPercent *decimal.Decimal // defaults to the client's standard discount
	TaxPercent      decimal.Decimal
	UnitPriceFine   *decimal.Decimal
}

// EditDataInput holds the editable package fields; nil means unchanged
type EditDataInput struct {
	DiscountPercent *decimal.Decimal
	TaxPercent      *decimal.Decimal
	Number          *string
}

// PackageView is a package together with its derived figures
type PackageView struct {
	Package    *entity.Package   `json:"package"`
	Settlement settlement.Result `json:"settlement"`
	State      workflow.State    `json:"state"`
}

// PackageService runs every package mutation. Each mutation appends exactly
// one log entry, plus a system recalculation entry when it invalidates an
// existing verification. Both are written in the same transaction as the
// package.
type PackageService interface {
	Create(ctx context.Context, actor string, in CreatePackageInput) (*entity.Package, error)
	Get(ctx context.Context, id string) (*PackageView, error)
	Delete(ctx context.Context, actor, id string) error
	History(ctx context.Context, id string) ([]*entity.LogEntry, error)

	AddLine(ctx context.Context, actor, packageID string, bruto, ley decimal.Decimal) (*entity.Package, error)
	RemoveLine(ctx context.Context, actor, packageID, lineID string) (*entity.Package, error)
	EditData(ctx context.Context, actor, packageID string, in EditDataInput) (*entity.Package, error)
	SetUnitPrice(ctx context.Context, actor, packageID string, price *decimal.Decimal) (*entity.Package, error)
	SetCounterpartyClose(ctx context.Context, actor, packageID string, price *decimal.Decimal) (*entity.Package, error)

	AttachInvoice(ctx context.Context, actor, packageID, fileID string) (*entity.Package, error)
	RemoveInvoice(ctx context.Context, actor, packageID string) (*entity.Package, error)
	StoreVerification(ctx context.Context, actor, packageID, sourceFileID string, ex *reconcile.Extraction) (*entity.Package, error)
	ClearVerification(ctx context.Context, actor, packageID string) (*entity.Package, error)
	Validate(ctx context.Context, actor, packageID string) (*entity.Package, error)

	SetStatus(ctx context.Context, actor, packageID, status string) (*entity.Package, error)
	SetPaymentStatus(ctx context.Context, actor, packageID, status string) (*entity.Package, error)
	AddComment(ctx context.Context, actor, packageID, text string) (*entity.Package, error)
	RemoveComment(ctx context.Context, actor, packageID, commentID string) (*entity.Package, error)

	// Reprice applies the cascade to every package of an expedition after
	// its default price changed. Only packages priced from the fallback and
	// holding a verification are touched.
	Reprice(ctx context.Context, actor, expeditionID string) (int, error)
}

type packageServiceImpl struct {
	packageRepo    port.PackageRepository
	expeditionRepo port.ExpeditionRepository
	clientRepo     port.ClientRepository
	logRepo        port.LogRepository
	txManager      port.TransactionManager
	clock          port.Clock
	ids            port.IDGenerator
	machine        *workflow.Machine
	logger         Logger
}

// NewPackageService creates a new PackageService
func NewPackageService(
	packageRepo port.PackageRepository,
	expeditionRepo port.ExpeditionRepository,
	clientRepo port.ClientRepository,
	logRepo port.LogRepository,
	txManager port.TransactionManager,
	clock port.Clock,
	ids port.IDGenerator,
	logger Logger,
) PackageService {
	return &packageServiceImpl{
		packageRepo:    packageRepo,
		expeditionRepo: expeditionRepo,
		clientRepo:     clientRepo,
		logRepo:        logRepo,
		txManager:      txManager,
		clock:          clock,
		ids:            ids,
		machine:        workflow.NewSettlementMachine(),
		logger:         logger,
	}
}

// snapshot is the state a mutation runs against. repriced is set by a
// mutation whose settlement input changed outside the package itself.
type snapshot struct {
	pkg        *entity.Package
	expedition *entity.Expedition
	policy     entity.ClientPolicy
	repriced   bool
}

func (s *snapshot) settle() settlement.Result {
	return settlement.Calculate(s.pkg, s.policy, s.expedition)
}

func (s *snapshot) state() workflow.State {
	_, _, priced := settlement.EffectivePrice(s.pkg, s.expedition)
	return workflow.Derive(s.pkg, priced)
}

// mutation applies a change to pkg in place. It returns the log payload, or
// nil details when nothing changed.
type mutation func(snap *snapshot) (details map[string]interface{}, err error)

func (s *packageServiceImpl) load(ctx context.Context, packageID string) (*snapshot, error) {
	pkg, err := s.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("package %s: %w", packageID, entity.ErrNotFound)
	}

	exp, err := s.expeditionRepo.GetByID(ctx, pkg.ExpeditionID)
	if err != nil {
		return nil, fmt.Errorf("get expedition: %w", err)
	}

	policy := entity.DefaultClientPolicy()
	client, err := s.clientRepo.GetByID(ctx, pkg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client != nil {
		policy = client.Policy
	}

	return &snapshot{pkg: pkg, expedition: exp, policy: policy}, nil
}

// apply runs one mutation inside a transaction: guard, change, cascade,
// persist, log.
func (s *packageServiceImpl) apply(ctx context.Context, actor, packageID string, trigger workflow.Trigger, kind entity.LogKind, fn mutation) (*entity.Package, error) {
	return s.run(ctx, actor, packageID, trigger, kind, nil, fn)
}

// run is apply with an optional done check evaluated before the transition
// guard. A package that is already done is returned unchanged.
func (s *packageServiceImpl) run(ctx context.Context, actor, packageID string, trigger workflow.Trigger, kind entity.LogKind, done func(*snapshot) bool, fn mutation) (*entity.Package, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", entity.ErrInvalidInput)
	}

	var result *entity.Package
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		snap, err := s.load(ctx, packageID)
		if err != nil {
			return err
		}

		if done != nil && done(snap) {
			result = snap.pkg
			return nil
		}
		if err := s.machine.Check(snap.state(), trigger, snap.pkg); err != nil {
			return mapTransitionError(trigger, err)
		}

		before := snap.pkg.Clone()
		details, err := fn(snap)
		if err != nil {
			return err
		}
		if details == nil {
			// no changes to save
			result = before
			return nil
		}

		now := s.clock.Now()
		var recalc map[string]interface{}
		changed, linesChanged := settlement.InputsChanged(before, snap.pkg)
		if trigger.Invalidates() && (changed || snap.repriced) && snap.pkg.Verification.HasInvoiceTotal() {
			recalc = s.cascade(snap, before, kind, linesChanged)
		}

		snap.pkg.Version++
		snap.pkg.UpdatedAt = now
		if err := s.packageRepo.Update(ctx, snap.pkg); err != nil {
			return fmt.Errorf("update package: %w", err)
		}

		if err := s.appendLog(ctx, snap.pkg, actor, kind, details, now); err != nil {
			return err
		}
		if recalc != nil {
			if err := s.appendLog(ctx, snap.pkg, entity.SystemActor, entity.LogSystemRecalculated, recalc, now); err != nil {
				return err
			}
		}

		result = snap.pkg
		return nil
	})
	if err != nil {
		s.logger.Error("Package mutation failed", "package_id", packageID, "action", string(kind), "error", err)
		return nil, err
	}

	s.logger.Info("Package mutation applied", "package_id", packageID, "action", string(kind), "actor", actor)
	return result, nil
}

// cascade recomputes the verification record after an input changed and
// returns the payload of the system recalculation entry. A package left
// without an effective price gets an unpriced record rather than a 0 total.
func (s *packageServiceImpl) cascade(snap *snapshot, before *entity.Package, kind entity.LogKind, linesChanged bool) map[string]interface{} {
	old := snap.pkg.Verification
	r := snap.settle()
	var computed *decimal.Decimal
	if r.Priced {
		total := r.InvoiceTotal
		computed = &total
	}
	rec := reconcile.Recalculate(old, snap.pkg.Lines, computed, linesChanged)
	snap.pkg.Verification = rec

	return map[string]interface{}{
		"cause":           string(kind),
		"computed_before": recordTotal(old, old.ComputedTotal),
		"computed_after":  recordTotal(rec, rec.ComputedTotal),
		"delta_before":    recordTotal(old, old.Delta),
		"delta_after":     recordTotal(rec, rec.Delta),
		"weights_match":   rec.WeightsMatch,
		"was_validated":   before.Verification != nil && before.Verification.Validated,
		"estimated_price": r.IsEstimated,
		"priced":          r.Priced,
		"lines_rechecked": linesChanged,
	}
}

func recordTotal(rec *entity.VerificationRecord, v decimal.Decimal) string {
	if rec.Unpriced {
		return "-"
	}
	return v.String()
}

func (s *packageServiceImpl) appendLog(ctx context.Context, pkg *entity.Package, actor string, kind entity.LogKind, details map[string]interface{}, now time.Time) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}
	entry := &entity.LogEntry{
		ID:           s.ids.NewID(),
		PackageID:    pkg.ID,
		ExpeditionID: pkg.ExpeditionID,
		Timestamp:    now,
		Actor:        actor,
		Kind:         kind,
		Details:      payload,
	}
	if err := s.logRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func mapTransitionError(trigger workflow.Trigger, err error) error {
	switch trigger {
	case workflow.TriggerValidate:
		if errors.Is(err, workflow.ErrGuardFailed) {
			return fmt.Errorf("%w: re-run verification", entity.ErrStaleVerification)
		}
		return entity.ErrNotVerified
	case workflow.TriggerVerify, workflow.TriggerRemoveInvoice:
		return entity.ErrNoInvoice
	case workflow.TriggerClearVerification:
		return entity.ErrNotVerified
	}
	return fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
}

// Create creates a package and logs its creation
func (s *packageServiceImpl) Create(ctx context.Context, actor string, in CreatePackageInput) (*entity.Package, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", entity.ErrInvalidInput)
	}
	if in.ExpeditionID == "" || in.ClientID == "" || in.CategoryID == "" {
		return nil, fmt.Errorf("%w: expedition, client and category are required", entity.ErrInvalidInput)
	}

	var pkg *entity.Package
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		exp, err := s.expeditionRepo.GetByID(ctx, in.ExpeditionID)
		if err != nil {
			return fmt.Errorf("get expedition: %w", err)
		}
		if exp == nil {
			return fmt.Errorf("expedition %s: %w", in.ExpeditionID, entity.ErrNotFound)
		}
		client, err := s.clientRepo.GetByID(ctx, in.ClientID)
		if err != nil {
			return fmt.Errorf("get client: %w", err)
		}
		if client == nil {
			return fmt.Errorf("client %s: %w", in.ClientID, entity.ErrNotFound)
		}

		discount := client.Policy.DiscountStandard
		if in.DiscountPercent != nil {
			discount = *in.DiscountPercent
		}

		now := s.clock.Now()
		pkg = &entity.Package{
			ID:              s.ids.NewID(),
			ExpeditionID:    in.ExpeditionID,
			ClientID:        in.ClientID,
			CategoryID:      in.CategoryID,
			Number:          in.Number,
			DiscountPercent: discount,
			TaxPercent:      in.TaxPercent,
			UnitPriceFine:   in.UnitPriceFine,
			Status:          entity.StatusInTransit,
			PaymentStatus:   entity.PaymentPending,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.packageRepo.Create(ctx, pkg); err != nil {
			return fmt.Errorf("create package: %w", err)
		}

		return s.appendLog(ctx, pkg, actor, entity.LogCreatePackage, map[string]interface{}{
			"number":   pkg.Number,
			"client":   pkg.ClientID,
			"category": pkg.CategoryID,
			"discount": pkg.DiscountPercent.String(),
			"tax":      pkg.TaxPercent.String(),
		}, now)
	})
	if err != nil {
		s.logger.Error("Failed to create package", "expedition_id", in.ExpeditionID, "error", err)
		return nil, err
	}

	s.logger.Info("Package created", "package_id", pkg.ID, "expedition_id", pkg.ExpeditionID)
	return pkg, nil
}

// Get returns a package with its settlement and state
func (s *packageServiceImpl) Get(ctx context.Context, id string) (*PackageView, error) {
	snap, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PackageView{Package: snap.pkg, Settlement: snap.settle(), State: snap.state()}, nil
}

// Delete removes a package. The deletion entry is appended before the row goes
// so the history keeps the last known content.
func (s *packageServiceImpl) Delete(ctx context.Context, actor, id string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", entity.ErrInvalidInput)
	}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		pkg, err := s.packageRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get package: %w", err)
		}
		if pkg == nil {
			return fmt.Errorf("package %s: %w", id, entity.ErrNotFound)
		}

		if err := s.appendLog(ctx, pkg, actor, entity.LogDeletePackage, map[string]interface{}{
			"number": pkg.Number,
			"lines":  len(pkg.Lines),
		}, s.clock.Now()); err != nil {
			return err
		}
		if err := s.packageRepo.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete package: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete package", "package_id", id, "error", err)
		return err
	}
	s.logger.Info("Package deleted", "package_id", id, "actor", actor)
	return nil
}

// History returns the audit log of a package in insertion order
func (s *packageServiceImpl) History(ctx context.Context, id string) ([]*entity.LogEntry, error) {
	entries, err := s.logRepo.ListByPackage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	return entries, nil
}
