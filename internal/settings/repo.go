package settings

import (
	"context"
	"database/sql"
	"strconv"
)

// Repository stores settings as key/value rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// Get reads every known key; missing keys take their defaults.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, err
	}
	defer rows.Close()
	var s Settings
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, err
		}
		switch k {
		case "APP_NAME":
			s.AppName = v
		case "APP_DESC":
			s.AppDesc = v
		case "INFO_TICKER":
			s.InfoTicker = v
		case "MAINTENANCE":
			s.Maintenance, _ = strconv.ParseBool(v)
		}
	}
	if err := rows.Err(); err != nil {
		return Settings{}, err
	}
	return s.Defaults(), nil
}

// Save upserts every key in one transaction.
func (r *Repository) Save(ctx context.Context, s Settings) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range map[string]string{
		"APP_NAME":    s.AppName,
		"APP_DESC":    s.AppDesc,
		"INFO_TICKER": s.InfoTicker,
		"MAINTENANCE": strconv.FormatBool(s.Maintenance),
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}
