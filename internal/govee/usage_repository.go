package govee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UsageRepository persists the call counter across restarts.
type UsageRepository interface {
	Load(ctx context.Context) (Usage, error)
	Save(ctx context.Context, usage Usage) error
}

// SQLiteUsageRepository stores usage in the single-row api_usage table.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a usage repository on db.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

// Load returns the saved usage, or ErrUsageNotFound before the first Save.
func (r *SQLiteUsageRepository) Load(ctx context.Context) (Usage, error) {
	var u Usage
	err := r.db.QueryRowContext(ctx,
		`SELECT api_calls, last_call_date FROM api_usage WHERE id = 1`,
	).Scan(&u.APICalls, &u.LastCallDate)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{}, ErrUsageNotFound
	}
	if err != nil {
		return Usage{}, fmt.Errorf("loading api usage: %w", err)
	}
	return u, nil
}

// Save upserts the usage row.
func (r *SQLiteUsageRepository) Save(ctx context.Context, u Usage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_usage (id, api_calls, last_call_date, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			api_calls = excluded.api_calls,
			last_call_date = excluded.last_call_date,
			updated_at = excluded.updated_at`,
		u.APICalls, u.LastCallDate, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving api usage: %w", err)
	}
	return nil
}
