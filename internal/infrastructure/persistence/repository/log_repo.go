package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// LogRepository implements port.LogRepository on the package_log table
type LogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLogRepository creates a new log repository
func NewLogRepository(db *sql.DB, logger *zap.Logger) port.LogRepository {
	return &LogRepository{db: db, logger: logger}
}

// Append inserts an entry
func (r *LogRepository) Append(ctx context.Context, entry *entity.LogEntry) error {
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}

	query := `
		INSERT INTO package_log (id, package_id, expedition_id, timestamp, actor, kind, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.PackageID,
		entry.ExpeditionID,
		entry.Timestamp,
		entry.Actor,
		string(entry.Kind),
		details,
	)
	if err != nil {
		r.logger.Error("Failed to append log entry",
			zap.String("package_id", entry.PackageID),
			zap.String("kind", string(entry.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListByPackage returns the entries of a package in insertion order
func (r *LogRepository) ListByPackage(ctx context.Context, packageID string) ([]*entity.LogEntry, error) {
	query := `
		SELECT id, package_id, expedition_id, timestamp, actor, kind, details
		FROM package_log
		WHERE package_id = ?
		ORDER BY rowid
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, packageID)
	if err != nil {
		r.logger.Error("Failed to list log entries", zap.String("package_id", packageID), zap.Error(err))
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.LogEntry
	for rows.Next() {
		var (
			e       entity.LogEntry
			kind    string
			details string
		)
		if err := rows.Scan(&e.ID, &e.PackageID, &e.ExpeditionID, &e.Timestamp, &e.Actor, &kind, &details); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Kind = entity.LogKind(kind)
		e.Details = []byte(details)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteByExpedition removes every entry recorded under an expedition,
// including those of packages that no longer exist
func (r *LogRepository) DeleteByExpedition(ctx context.Context, expeditionID string) error {
	res, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM package_log WHERE expedition_id = ?`, expeditionID)
	if err != nil {
		r.logger.Error("Failed to delete log entries", zap.String("expedition_id", expeditionID), zap.Error(err))
		return fmt.Errorf("failed to delete log entries: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		r.logger.Debug("Deleted log entries", zap.String("expedition_id", expeditionID), zap.Int64("count", n))
	}
	return nil
}

// Verify interface compliance
var _ port.LogRepository = (*LogRepository)(nil)
