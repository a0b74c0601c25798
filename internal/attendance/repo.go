package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository persists attendance records in Postgres. The table carries a
// UNIQUE (subject_id, record_date, status) constraint.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ RecordStore = (*Repository)(nil)

// Append writes a new record.
func (r *Repository) Append(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, record_date, occurred_at, subject_id, name, role, status, note, photo_url)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.Date, rec.At, rec.SubjectID, rec.Name, rec.Role, string(rec.Status), rec.Note, rec.PhotoURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("attendance: insert record: %w", err)
	}
	return nil
}

// QuerySubjectDay returns the subject's records for date, oldest first.
func (r *Repository) QuerySubjectDay(ctx context.Context, subjectID, date string) ([]Record, error) {
	return r.query(ctx, `
		SELECT id, record_date::text, occurred_at, subject_id, name, role, status, note, photo_url
		FROM attendance_records
		WHERE subject_id = $1 AND record_date = $2::date
		ORDER BY occurred_at ASC
	`, subjectID, date)
}

// QueryDay returns every record for date, newest first.
func (r *Repository) QueryDay(ctx context.Context, date string) ([]Record, error) {
	return r.query(ctx, `
		SELECT id, record_date::text, occurred_at, subject_id, name, role, status, note, photo_url
		FROM attendance_records
		WHERE record_date = $1::date
		ORDER BY occurred_at DESC
	`, date)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("attendance: query records: %w", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.At, &rec.SubjectID, &rec.Name, &rec.Role, &status, &rec.Note, &rec.PhotoURL); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}
