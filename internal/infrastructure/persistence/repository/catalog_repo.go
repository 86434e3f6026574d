package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// ClientRepository implements port.ClientRepository
type ClientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *sql.DB, logger *zap.Logger) port.ClientRepository {
	return &ClientRepository{db: db, logger: logger}
}

const clientColumns = `id, name, discount_standard, discount_fine, negative_lines_excluded, notify_chat_id, created_at`

// Create inserts a new client
func (r *ClientRepository) Create(ctx context.Context, c *entity.Client) error {
	query := `INSERT INTO clients (` + clientColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		c.ID,
		c.Name,
		c.Policy.DiscountStandard,
		c.Policy.DiscountFine,
		c.Policy.NegativeLinesExcludedFromWeight,
		c.NotifyChatID,
		c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create client", zap.String("name", c.Name), zap.Error(err))
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetByID retrieves a client. Returns nil, nil when it does not exist.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = ?`
	c, err := scanClient(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get client", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// List returns all clients by name
func (r *ClientRepository) List(ctx context.Context) ([]*entity.Client, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name`)
	if err != nil {
		r.logger.Error("Failed to list clients", zap.Error(err))
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*entity.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func scanClient(s scanner) (*entity.Client, error) {
	var c entity.Client
	err := s.Scan(
		&c.ID,
		&c.Name,
		&c.Policy.DiscountStandard,
		&c.Policy.DiscountFine,
		&c.Policy.NegativeLinesExcludedFromWeight,
		&c.NotifyChatID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CategoryRepository implements port.CategoryRepository
type CategoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *sql.DB, logger *zap.Logger) port.CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, c *entity.Category) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name)
	if err != nil {
		r.logger.Error("Failed to create category", zap.String("name", c.Name), zap.Error(err))
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetByID retrieves a category. Returns nil, nil when it does not exist.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*entity.Category, error) {
	var c entity.Category
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// List returns all categories by name
func (r *CategoryRepository) List(ctx context.Context) ([]*entity.Category, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		r.logger.Error("Failed to list categories", zap.Error(err))
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []*entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

// Verify interface compliance
var (
	_ port.ClientRepository   = (*ClientRepository)(nil)
	_ port.CategoryRepository = (*CategoryRepository)(nil)
)
