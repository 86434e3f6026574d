package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// ExpeditionInput holds the editable fields of an expedition
type ExpeditionInput struct {
	Name             string
	DefaultUnitPrice *decimal.Decimal
	InsuranceLimit   *decimal.Decimal
}

// ReferencePrice is the unit price of the most recently created priced package
type ReferencePrice struct {
	Price     decimal.Decimal `json:"price"`
	PackageID string          `json:"package_id"`
}

// ExpeditionService manages expeditions and their aggregate figures
type ExpeditionService interface {
	Create(ctx context.Context, in ExpeditionInput) (*entity.Expedition, error)
	Get(ctx context.Context, id string) (*entity.Expedition, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Expedition, error)
	Update(ctx context.Context, actor, id string, in ExpeditionInput) (*entity.Expedition, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context, id string) (*settlement.Summary, error)
	ReferencePrice(ctx context.Context, id string) (*ReferencePrice, error)
}

type expeditionServiceImpl struct {
	expeditionRepo port.ExpeditionRepository
	packageRepo    port.PackageRepository
	clientRepo     port.ClientRepository
	categoryRepo   port.CategoryRepository
	logRepo        port.LogRepository
	txManager      port.TransactionManager
	packages       PackageService
	clock          port.Clock
	ids            port.IDGenerator
	logger         Logger
}

// NewExpeditionService creates a new ExpeditionService
func NewExpeditionService(
	expeditionRepo port.ExpeditionRepository,
	packageRepo port.PackageRepository,
	clientRepo port.ClientRepository,
	categoryRepo port.CategoryRepository,
	logRepo port.LogRepository,
	txManager port.TransactionManager,
	packages PackageService,
	clock port.Clock,
	ids port.IDGenerator,
	logger Logger,
) ExpeditionService {
	return &expeditionServiceImpl{
		expeditionRepo: expeditionRepo,
		packageRepo:    packageRepo,
		clientRepo:     clientRepo,
		categoryRepo:   categoryRepo,
		logRepo:        logRepo,
		txManager:      txManager,
		packages:       packages,
		clock:          clock,
		ids:            ids,
		logger:         logger,
	}
}

func validateExpedition(in ExpeditionInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: expedition name is required", entity.ErrInvalidInput)
	}
	if in.DefaultUnitPrice != nil && !in.DefaultUnitPrice.IsPositive() {
		return fmt.Errorf("%w: default unit price must be positive", entity.ErrInvalidInput)
	}
	if in.InsuranceLimit != nil && !in.InsuranceLimit.IsPositive() {
		return fmt.Errorf("%w: insurance limit must be positive", entity.ErrInvalidInput)
	}
	return nil
}

// Create creates an expedition
func (s *expeditionServiceImpl) Create(ctx context.Context, in ExpeditionInput) (*entity.Expedition, error) {
	if err := validateExpedition(in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	exp := &entity.Expedition{
		ID:               s.ids.NewID(),
		Name:             strings.TrimSpace(in.Name),
		DefaultUnitPrice: cloneDecimal(in.DefaultUnitPrice),
		InsuranceLimit:   cloneDecimal(in.InsuranceLimit),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.expeditionRepo.Create(ctx, exp); err != nil {
		s.logger.Error("Failed to create expedition", "name", exp.Name, "error", err)
		return nil, fmt.Errorf("create expedition: %w", err)
	}

	s.logger.Info("Expedition created", "expedition_id", exp.ID, "name", exp.Name)
	return exp, nil
}

// Get returns an expedition
func (s *expeditionServiceImpl) Get(ctx context.Context, id string) (*entity.Expedition, error) {
	exp, err := s.expeditionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expedition: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("expedition %s: %w", id, entity.ErrNotFound)
	}
	return exp, nil
}

// List returns expeditions, newest first
func (s *expeditionServiceImpl) List(ctx context.Context, limit, offset int) ([]*entity.Expedition, error) {
	if limit <= 0 {
		limit = 50
	}
	exps, err := s.expeditionRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list expeditions: %w", err)
	}
	return exps, nil
}

// Update changes an expedition. Expeditions carry no audit log, but a changed
// default price reprices every package relying on it, and those packages get
// the verification cascade with their own log entries. The expedition row and
// the repriced packages are written in one transaction.
func (s *expeditionServiceImpl) Update(ctx context.Context, actor, id string, in ExpeditionInput) (*entity.Expedition, error) {
	if err := validateExpedition(in); err != nil {
		return nil, err
	}

	var exp *entity.Expedition
	repriced := 0
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		exp, err = s.Get(ctx, id)
		if err != nil {
			return err
		}

		priceChanged := !sameOptDecimal(exp.DefaultUnitPrice, in.DefaultUnitPrice)
		exp.Name = strings.TrimSpace(in.Name)
		exp.DefaultUnitPrice = cloneDecimal(in.DefaultUnitPrice)
		exp.InsuranceLimit = cloneDecimal(in.InsuranceLimit)
		exp.UpdatedAt = s.clock.Now()

		if err := s.expeditionRepo.Update(ctx, exp); err != nil {
			return fmt.Errorf("update expedition: %w", err)
		}
		if !priceChanged {
			return nil
		}
		if repriced, err = s.packages.Reprice(ctx, actor, id); err != nil {
			return fmt.Errorf("reprice packages: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Failed to update expedition", "expedition_id", id, "error", err)
		}
		return nil, err
	}

	if repriced > 0 {
		s.logger.Info("Expedition default price changed", "expedition_id", id, "repriced", repriced)
	}
	return exp, nil
}

// Delete removes an expedition together with its packages and every log entry
// recorded under it, including those of packages deleted earlier. Either
// everything is deleted or nothing is.
func (s *expeditionServiceImpl) Delete(ctx context.Context, id string) error {
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		exp, err := s.expeditionRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get expedition: %w", err)
		}
		if exp == nil {
			return fmt.Errorf("expedition %s: %w", id, entity.ErrNotFound)
		}

		pkgs, err := s.packageRepo.ListByExpedition(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: list packages: %v", entity.ErrCascadeFailed, err)
		}
		if err := s.logRepo.DeleteByExpedition(ctx, id); err != nil {
			return fmt.Errorf("%w: delete log: %v", entity.ErrCascadeFailed, err)
		}
		for _, p := range pkgs {
			if err := s.packageRepo.Delete(ctx, p.ID); err != nil {
				return fmt.Errorf("%w: delete package %s: %v", entity.ErrCascadeFailed, p.ID, err)
			}
		}
		if err := s.expeditionRepo.Delete(ctx, id); err != nil {
			return fmt.Errorf("%w: delete expedition: %v", entity.ErrCascadeFailed, err)
		}

		s.logger.Info("Expedition deleted", "expedition_id", id, "packages", len(pkgs))
		return nil
	})
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			s.logger.Error("Expedition delete rolled back", "expedition_id", id, "error", err)
		}
		return err
	}
	return nil
}

// Summary aggregates every package of the expedition
func (s *expeditionServiceImpl) Summary(ctx context.Context, id string) (*settlement.Summary, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pkgs, err := s.packageRepo.ListByExpedition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	clients, err := s.clientRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	clientMap := make(map[string]*entity.Client, len(clients))
	for _, c := range clients {
		clientMap[c.ID] = c
	}
	categoryMap := make(map[string]*entity.Category, len(categories))
	for _, c := range categories {
		categoryMap[c.ID] = c
	}

	summary := settlement.Aggregate(exp, pkgs, clientMap, categoryMap)
	return &summary, nil
}

// ReferencePrice returns the price of the most recently created package that
// has its own unit price
func (s *expeditionServiceImpl) ReferencePrice(ctx context.Context, id string) (*ReferencePrice, error) {
	pkgs, err := s.packageRepo.ListByExpedition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	price, pkgID, ok := settlement.ReferencePrice(pkgs)
	if !ok {
		return nil, fmt.Errorf("no priced package in expedition %s: %w", id, entity.ErrNotFound)
	}
	return &ReferencePrice{Price: price, PackageID: pkgID}, nil
}
