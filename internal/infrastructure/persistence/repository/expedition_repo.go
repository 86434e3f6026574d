package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExpeditionRepository implements port.ExpeditionRepository
type ExpeditionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpeditionRepository creates a new expedition repository
func NewExpeditionRepository(db *sql.DB, logger *zap.Logger) port.ExpeditionRepository {
	return &ExpeditionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expedition
func (r *ExpeditionRepository) Create(ctx context.Context, exp *entity.Expedition) error {
	query := `
		INSERT INTO expeditions (id, name, default_unit_price, insurance_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		exp.ID,
		exp.Name,
		nullDecimal(exp.DefaultUnitPrice),
		nullDecimal(exp.InsuranceLimit),
		exp.CreatedAt,
		exp.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expedition", zap.String("id", exp.ID), zap.Error(err))
		return fmt.Errorf("failed to create expedition: %w", err)
	}
	return nil
}

// GetByID retrieves an expedition. Returns nil, nil when it does not exist.
func (r *ExpeditionRepository) GetByID(ctx context.Context, id string) (*entity.Expedition, error) {
	query := `
		SELECT id, name, default_unit_price, insurance_limit, created_at, updated_at
		FROM expeditions WHERE id = ?
	`
	exp, err := scanExpedition(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expedition", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expedition: %w", err)
	}
	return exp, nil
}

// List returns expeditions newest first
func (r *ExpeditionRepository) List(ctx context.Context, limit, offset int) ([]*entity.Expedition, error) {
	query := `
		SELECT id, name, default_unit_price, insurance_limit, created_at, updated_at
		FROM expeditions
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list expeditions", zap.Error(err))
		return nil, fmt.Errorf("failed to list expeditions: %w", err)
	}
	defer rows.Close()

	var exps []*entity.Expedition
	for rows.Next() {
		exp, err := scanExpedition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expedition: %w", err)
		}
		exps = append(exps, exp)
	}
	return exps, rows.Err()
}

// Update overwrites an expedition
func (r *ExpeditionRepository) Update(ctx context.Context, exp *entity.Expedition) error {
	query := `
		UPDATE expeditions
		SET name = ?, default_unit_price = ?, insurance_limit = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		exp.Name,
		nullDecimal(exp.DefaultUnitPrice),
		nullDecimal(exp.InsuranceLimit),
		exp.UpdatedAt,
		exp.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update expedition", zap.String("id", exp.ID), zap.Error(err))
		return fmt.Errorf("failed to update expedition: %w", err)
	}
	return requireAffected(res, "expedition", exp.ID)
}

// Delete removes an expedition. Its packages must be deleted first.
func (r *ExpeditionRepository) Delete(ctx context.Context, id string) error {
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM expeditions WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete expedition", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete expedition: %w", err)
	}
	return requireAffected(res, "expedition", id)
}

func scanExpedition(s scanner) (*entity.Expedition, error) {
	var (
		exp          entity.Expedition
		price, limit decimal.NullDecimal
	)
	if err := s.Scan(&exp.ID, &exp.Name, &price, &limit, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		return nil, err
	}
	exp.DefaultUnitPrice = fromNullDecimal(price)
	exp.InsuranceLimit = fromNullDecimal(limit)
	return &exp, nil
}

// Verify interface compliance
var _ port.ExpeditionRepository = (*ExpeditionRepository)(nil)
