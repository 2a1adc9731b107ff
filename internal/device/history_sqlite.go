package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
//
// Rows land in the property_history table (see migrations).
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordChange appends one observed transition.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - property: Wire token of the property (e.g. "P1P")
//   - value: Raw wire value; empty for invalidations
//   - known: False for invalidation entries
//   - source: Origin of the change (device, reset)
func (r *SQLiteHistoryRepository) RecordChange(ctx context.Context, property, value string, known bool, source string) error {
	if property == "" && source != HistorySourceReset {
		return fmt.Errorf("property is required")
	}
	if source == "" {
		source = HistorySourceDevice
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO property_history (property, value, known, source) VALUES (?, ?, ?, ?)",
		property,
		value,
		known,
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting property history: %w", err)
	}

	return nil
}

// GetHistory returns recent transitions for a property, newest first.
// Limit defaults to 50 and is capped at 200.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, property string, limit int) ([]HistoryEntry, error) {
	if property == "" {
		return nil, fmt.Errorf("property is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, property, value, known, source, created_at
		 FROM property_history
		 WHERE property = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		property,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying property history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Property, &entry.Value, &entry.Known, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning property history: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than the retention duration.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM property_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting property history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored by SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
