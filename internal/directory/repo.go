package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the Postgres-backed directory.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

const identityColumns = `subject_id, email, display_name, role, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner, extra ...any) (*Identity, error) {
	var id Identity
	var role, status string
	dest := append([]any{&id.SubjectID, &id.Email, &id.DisplayName, &role, &status}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if id.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	if id.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	return &id, nil
}

// LookupBySubject returns nil when the subject does not exist.
func (r *Repository) LookupBySubject(ctx context.Context, subjectID string) (*Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM users WHERE subject_id = $1`, subjectID)
	return scanIdentity(row)
}

// LookupByCredential resolves a QR credential hash.
func (r *Repository) LookupByCredential(ctx context.Context, hash string) (*Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.subject_id, u.email, u.display_name, u.role, u.status
		FROM qr_credentials q JOIN users u ON u.subject_id = q.subject_id
		WHERE q.credential_hash = $1
	`, hash)
	return scanIdentity(row)
}

// LookupByEmail matches case-insensitively and includes the password hash.
func (r *Repository) LookupByEmail(ctx context.Context, email string) (*Account, error) {
	var acct Account
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+`, password_hash, created_at FROM users WHERE lower(email) = lower($1)`, email)
	id, err := scanIdentity(row, &acct.PasswordHash, &acct.CreatedAt)
	if err != nil || id == nil {
		return nil, err
	}
	acct.Identity = *id
	return &acct, nil
}

// List returns all identities ordered by subject id.
func (r *Repository) List(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM users ORDER BY subject_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *id)
	}
	return out, rows.Err()
}

// Create inserts an account.
func (r *Repository) Create(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (subject_id, email, password_hash, display_name, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.SubjectID, a.Email, a.PasswordHash, a.DisplayName, string(a.Role), string(a.Status))
	return mapWriteErr(err)
}

// Update changes email, display name and role.
func (r *Repository) Update(ctx context.Context, id Identity) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = $2, display_name = $3, role = $4, updated_at = NOW()
		WHERE subject_id = $1
	`, id.SubjectID, id.Email, id.DisplayName, string(id.Role))
	return affected(res, mapWriteErr(err))
}

// SetPasswordHash replaces the stored hash.
func (r *Repository) SetPasswordHash(ctx context.Context, subjectID, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE subject_id = $1`, subjectID, hash)
	return affected(res, err)
}

// SetStatus changes the account status.
func (r *Repository) SetStatus(ctx context.Context, subjectID string, status Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE subject_id = $1`, subjectID, string(status))
	return affected(res, err)
}

// Delete removes the account; credentials cascade.
func (r *Repository) Delete(ctx context.Context, subjectID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE subject_id = $1`, subjectID)
	return affected(res, err)
}

// BindCredential maps a QR credential hash to a subject, replacing any
// previous mapping of the same hash.
func (r *Repository) BindCredential(ctx context.Context, hash, subjectID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qr_credentials (credential_hash, subject_id)
		VALUES ($1, $2)
		ON CONFLICT (credential_hash) DO UPDATE SET subject_id = EXCLUDED.subject_id
	`, hash, subjectID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("directory: write: %w", err)
	}
	return nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
