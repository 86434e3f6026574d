package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
)

// CatalogService manages the reference data packages point at
type CatalogService interface {
	CreateClient(ctx context.Context, name string, policy entity.ClientPolicy, notifyChatID string) (*entity.Client, error)
	ListClients(ctx context.Context) ([]*entity.Client, error)
	CreateCategory(ctx context.Context, name string) (*entity.Category, error)
	ListCategories(ctx context.Context) ([]*entity.Category, error)
}

type catalogServiceImpl struct {
	clientRepo   port.ClientRepository
	categoryRepo port.CategoryRepository
	clock        port.Clock
	ids          port.IDGenerator
	logger       Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(clientRepo port.ClientRepository, categoryRepo port.CategoryRepository, clock port.Clock, ids port.IDGenerator, logger Logger) CatalogService {
	return &catalogServiceImpl{
		clientRepo:   clientRepo,
		categoryRepo: categoryRepo,
		clock:        clock,
		ids:          ids,
		logger:       logger,
	}
}

func (s *catalogServiceImpl) CreateClient(ctx context.Context, name string, policy entity.ClientPolicy, notifyChatID string) (*entity.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", entity.ErrInvalidInput)
	}
	if !validPercent(policy.DiscountStandard) || !validPercent(policy.DiscountFine) {
		return nil, fmt.Errorf("%w: discounts must be between 0 and 100", entity.ErrInvalidInput)
	}

	client := &entity.Client{
		ID:           s.ids.NewID(),
		Name:         name,
		Policy:       policy,
		NotifyChatID: notifyChatID,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.logger.Info("Client created", "client_id", client.ID, "name", name)
	return client, nil
}

func (s *catalogServiceImpl) ListClients(ctx context.Context) ([]*entity.Client, error) {
	return s.clientRepo.List(ctx)
}

func (s *catalogServiceImpl) CreateCategory(ctx context.Context, name string) (*entity.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", entity.ErrInvalidInput)
	}
	cat := &entity.Category{ID: s.ids.NewID(), Name: name}
	if err := s.categoryRepo.Create(ctx, cat); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.logger.Info("Category created", "category_id", cat.ID, "name", name)
	return cat, nil
}

func (s *catalogServiceImpl) ListCategories(ctx context.Context) ([]*entity.Category, error) {
	return s.categoryRepo.List(ctx)
}
