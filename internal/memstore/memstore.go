// Package memstore implements the directory, attendance log and settings
// boundaries in memory, for development (STORE_BACKEND=memory) and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"presensi/internal/attendance"
	"presensi/internal/directory"
	"presensi/internal/settings"
)

// Ensure interfaces are met.
var (
	_ directory.Store        = (*Directory)(nil)
	_ attendance.RecordStore = (*Records)(nil)
	_ settings.Store         = (*Settings)(nil)
)

// --- Directory ---

// Directory is an in-memory user directory with a QR credential map.
type Directory struct {
	mu          sync.RWMutex
	accounts    map[string]directory.Account
	credentials map[string]string // credential hash -> subject id
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		accounts:    make(map[string]directory.Account),
		credentials: make(map[string]string),
	}
}

// LookupBySubject implements directory.Lookup.
func (d *Directory) LookupBySubject(_ context.Context, subjectID string) (*directory.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[subjectID]
	if !ok {
		return nil, nil
	}
	id := a.Identity
	return &id, nil
}

// LookupByCredential implements directory.CredentialLookup.
func (d *Directory) LookupByCredential(ctx context.Context, hash string) (*directory.Identity, error) {
	d.mu.RLock()
	subject, ok := d.credentials[hash]
	d.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return d.LookupBySubject(ctx, subject)
}

// LookupByEmail matches case-insensitively.
func (d *Directory) LookupByEmail(_ context.Context, email string) (*directory.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, email) {
			acct := a
			return &acct, nil
		}
	}
	return nil, nil
}

// List returns identities ordered by subject id.
func (d *Directory) List(_ context.Context) ([]directory.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]directory.Identity, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a.Identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// Create adds an account; subject id and email must be unique.
func (d *Directory) Create(_ context.Context, acct directory.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[acct.SubjectID]; ok {
		return directory.ErrConflict
	}
	for _, a := range d.accounts {
		if strings.EqualFold(a.Email, acct.Email) {
			return directory.ErrConflict
		}
	}
	d.accounts[acct.SubjectID] = acct
	return nil
}

// Update replaces email, display name and role.
func (d *Directory) Update(_ context.Context, id directory.Identity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id.SubjectID]
	if !ok {
		return directory.ErrNotFound
	}
	for sid, other := range d.accounts {
		if sid != id.SubjectID && strings.EqualFold(other.Email, id.Email) {
			return directory.ErrConflict
		}
	}
	a.Email = id.Email
	a.DisplayName = id.DisplayName
	a.Role = id.Role
	d.accounts[id.SubjectID] = a
	return nil
}

// SetPasswordHash replaces the stored hash.
func (d *Directory) SetPasswordHash(_ context.Context, subjectID, hash string) error {
	return d.mutate(subjectID, func(a *directory.Account) { a.PasswordHash = hash })
}

// SetStatus changes the account status.
func (d *Directory) SetStatus(_ context.Context, subjectID string, status directory.Status) error {
	return d.mutate(subjectID, func(a *directory.Account) { a.Status = status })
}

// Delete removes the account and its credentials.
func (d *Directory) Delete(_ context.Context, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[subjectID]; !ok {
		return directory.ErrNotFound
	}
	delete(d.accounts, subjectID)
	for h, s := range d.credentials {
		if s == subjectID {
			delete(d.credentials, h)
		}
	}
	return nil
}

// BindCredential maps a QR credential hash to a subject.
func (d *Directory) BindCredential(_ context.Context, hash, subjectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[subjectID]; !ok {
		return directory.ErrNotFound
	}
	d.credentials[hash] = subjectID
	return nil
}

func (d *Directory) mutate(subjectID string, fn func(*directory.Account)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[subjectID]
	if !ok {
		return directory.ErrNotFound
	}
	fn(&a)
	d.accounts[subjectID] = a
	return nil
}

// --- Records ---

// Records is an append-only in-memory attendance log.
type Records struct {
	mu   sync.RWMutex
	rows []attendance.Record
}

// NewRecords creates an empty log.
func NewRecords() *Records {
	return &Records{}
}

// Append enforces one record per (subject, date, status).
func (r *Records) Append(_ context.Context, rec attendance.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SubjectID == rec.SubjectID && row.Date == rec.Date && row.Status == rec.Status {
			return attendance.ErrDuplicate
		}
	}
	r.rows = append(r.rows, rec)
	return nil
}

// QuerySubjectDay returns the subject's records for date, oldest first.
func (r *Records) QuerySubjectDay(_ context.Context, subjectID, date string) ([]attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []attendance.Record
	for _, row := range r.rows {
		if row.SubjectID == subjectID && row.Date == date {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// QueryDay returns every record for date, newest first.
func (r *Records) QueryDay(_ context.Context, date string) ([]attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []attendance.Record
	for _, row := range r.rows {
		if row.Date == date {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

// --- Settings ---

// Settings holds one settings value.
type Settings struct {
	mu sync.RWMutex
	s  settings.Settings
}

// NewSettings creates a settings store with defaults.
func NewSettings() *Settings {
	return &Settings{s: settings.Settings{}.Defaults()}
}

// Get returns the current settings.
func (s *Settings) Get(_ context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s, nil
}

// Save replaces the settings.
func (s *Settings) Save(_ context.Context, v settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s = v
	return nil
}
