// Package directory models the user directory the portal reads identities from.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of directory roles.
type Role string

const (
	RoleStaff      Role = "Staff"
	RoleTeacher    Role = "Teacher"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "Super Admin"
	RoleSuperUser  Role = "Super User"
)

// Roles lists every role in display order.
var Roles = []Role{RoleStaff, RoleTeacher, RoleAdmin, RoleSuperAdmin, RoleSuperUser}

var roleAliases = map[string]Role{
	"staff":       RoleStaff,
	"tendik":      RoleStaff,
	"teacher":     RoleTeacher,
	"guru":        RoleTeacher,
	"admin":       RoleAdmin,
	"super admin": RoleSuperAdmin,
	"superadmin":  RoleSuperAdmin,
	"super user":  RoleSuperUser,
	"superuser":   RoleSuperUser,
}

// ParseRole accepts canonical names and the labels used by older rows.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Status is the account status.
type Status string

const (
	StatusActive   Status = "Active"
	StatusDisabled Status = "Disabled"
)

// ParseStatus accepts canonical names and legacy labels.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "aktif":
		return StatusActive, nil
	case "disabled", "nonaktif", "inactive":
		return StatusDisabled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Identity is a directory entry as seen by the core.
type Identity struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Status      Status `json:"status"`
}

// Account is an Identity plus the stored password hash. It never leaves the
// authentication path.
type Account struct {
	Identity
	PasswordHash string
	CreatedAt    time.Time
}

// Lookup resolves a subject to its live directory entry. A missing subject is
// reported as (nil, nil).
type Lookup interface {
	LookupBySubject(ctx context.Context, subjectID string) (*Identity, error)
}

// CredentialLookup resolves a scanned credential hash to a subject.
type CredentialLookup interface {
	LookupByCredential(ctx context.Context, credentialHash string) (*Identity, error)
}

// Store is the full directory boundary used by the portal's admin screens.
type Store interface {
	Lookup
	CredentialLookup
	LookupByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]Identity, error)
	Create(ctx context.Context, acct Account) error
	Update(ctx context.Context, id Identity) error
	SetPasswordHash(ctx context.Context, subjectID, hash string) error
	SetStatus(ctx context.Context, subjectID string, status Status) error
	Delete(ctx context.Context, subjectID string) error
	BindCredential(ctx context.Context, credentialHash, subjectID string) error
}

// Store errors.
var (
	ErrNotFound = errors.New("directory: subject not found")
	ErrConflict = errors.New("directory: subject id or email already registered")
)
