package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PackageRepository implements port.PackageRepository.
// Lines, comments and the verification record are JSON columns.
type PackageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *sql.DB, logger *zap.Logger) port.PackageRepository {
	return &PackageRepository{
		db:     db,
		logger: logger,
	}
}

const packageColumns = `id, expedition_id, client_id, category_id, number,
	discount_percent, tax_percent, unit_price_fine, counterparty_close_price,
	lines, comments, invoice_file_id, verification,
	status, payment_status, version, created_at, updated_at`

type packageJSON struct {
	lines        string
	comments     string
	verification sql.NullString
}

func encodePackage(pkg *entity.Package) (*packageJSON, error) {
	lines := pkg.Lines
	if lines == nil {
		lines = []entity.Line{}
	}
	comments := pkg.Comments
	if comments == nil {
		comments = []entity.Comment{}
	}

	var out packageJSON
	var err error
	if out.lines, err = toJSON(lines); err != nil {
		return nil, err
	}
	if out.comments, err = toJSON(comments); err != nil {
		return nil, err
	}
	if pkg.Verification != nil {
		v, err := toJSON(pkg.Verification)
		if err != nil {
			return nil, err
		}
		out.verification = sql.NullString{String: v, Valid: true}
	}
	return &out, nil
}

// Create inserts a new package
func (r *PackageRepository) Create(ctx context.Context, pkg *entity.Package) error {
	enc, err := encodePackage(pkg)
	if err != nil {
		return err
	}

	query := `INSERT INTO packages (` + packageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		pkg.ID,
		pkg.ExpeditionID,
		pkg.ClientID,
		pkg.CategoryID,
		pkg.Number,
		pkg.DiscountPercent,
		pkg.TaxPercent,
		nullDecimal(pkg.UnitPriceFine),
		nullDecimal(pkg.CounterpartyClosePrice),
		enc.lines,
		enc.comments,
		pkg.InvoiceFileID,
		enc.verification,
		pkg.Status,
		pkg.PaymentStatus,
		pkg.Version,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create package",
			zap.String("id", pkg.ID),
			zap.String("expedition_id", pkg.ExpeditionID),
			zap.Error(err))
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

// GetByID retrieves a package. Returns nil, nil when it does not exist.
func (r *PackageRepository) GetByID(ctx context.Context, id string) (*entity.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE id = ?`

	pkg, err := scanPackage(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get package", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return pkg, nil
}

// ListByExpedition returns the packages of an expedition in creation order
func (r *PackageRepository) ListByExpedition(ctx context.Context, expeditionID string) ([]*entity.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE expedition_id = ? ORDER BY id`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, expeditionID)
	if err != nil {
		r.logger.Error("Failed to list packages", zap.String("expedition_id", expeditionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var pkgs []*entity.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packages: %w", err)
	}
	return pkgs, nil
}

// Update overwrites every mutable column of a package
func (r *PackageRepository) Update(ctx context.Context, pkg *entity.Package) error {
	enc, err := encodePackage(pkg)
	if err != nil {
		return err
	}

	query := `
		UPDATE packages SET
			client_id = ?, category_id = ?, number = ?,
			discount_percent = ?, tax_percent = ?,
			unit_price_fine = ?, counterparty_close_price = ?,
			lines = ?, comments = ?, invoice_file_id = ?, verification = ?,
			status = ?, payment_status = ?, version = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		pkg.ClientID,
		pkg.CategoryID,
		pkg.Number,
		pkg.DiscountPercent,
		pkg.TaxPercent,
		nullDecimal(pkg.UnitPriceFine),
		nullDecimal(pkg.CounterpartyClosePrice),
		enc.lines,
		enc.comments,
		pkg.InvoiceFileID,
		enc.verification,
		pkg.Status,
		pkg.PaymentStatus,
		pkg.Version,
		pkg.UpdatedAt,
		pkg.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update package", zap.String("id", pkg.ID), zap.Error(err))
		return fmt.Errorf("failed to update package: %w", err)
	}
	return requireAffected(res, "package", pkg.ID)
}

// Delete removes a package
func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete package", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete package: %w", err)
	}
	return requireAffected(res, "package", id)
}

func scanPackage(s scanner) (*entity.Package, error) {
	var (
		pkg                   entity.Package
		unitPrice, closePrice decimal.NullDecimal
		lines, comments       string
		verification          sql.NullString
	)
	err := s.Scan(
		&pkg.ID,
		&pkg.ExpeditionID,
		&pkg.ClientID,
		&pkg.CategoryID,
		&pkg.Number,
		&pkg.DiscountPercent,
		&pkg.TaxPercent,
		&unitPrice,
		&closePrice,
		&lines,
		&comments,
		&pkg.InvoiceFileID,
		&verification,
		&pkg.Status,
		&pkg.PaymentStatus,
		&pkg.Version,
		&pkg.CreatedAt,
		&pkg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pkg.UnitPriceFine = fromNullDecimal(unitPrice)
	pkg.CounterpartyClosePrice = fromNullDecimal(closePrice)

	if err := json.Unmarshal([]byte(lines), &pkg.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode lines of package %s: %w", pkg.ID, err)
	}
	if err := json.Unmarshal([]byte(comments), &pkg.Comments); err != nil {
		return nil, fmt.Errorf("failed to decode comments of package %s: %w", pkg.ID, err)
	}
	if verification.Valid {
		var rec entity.VerificationRecord
		if err := json.Unmarshal([]byte(verification.String), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode verification of package %s: %w", pkg.ID, err)
		}
		pkg.Verification = &rec
	}
	return &pkg, nil
}

// Verify interface compliance
var _ port.PackageRepository = (*PackageRepository)(nil)
