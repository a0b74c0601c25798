package portal

import (
	"context"
	"math"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"

	"presensi/internal/apperr"
	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/directory"
	"presensi/internal/settings"
)

// DashboardStats summarises the directory and today's attendance.
type DashboardStats struct {
	Total             int                    `json:"total"`
	PerRole           map[directory.Role]int `json:"per_role"`
	PresentToday      int                    `json:"present_today"`
	AttendancePercent int                    `json:"attendance_percent"`
}

// AdminDashboard is returned by AdminDashboard.
type AdminDashboard struct {
	Stats  DashboardStats       `json:"stats"`
	Recent []directory.Identity `json:"recent"`
}

// AdminDashboard returns directory totals and today's attendance percentage.
// A failed attendance read reports 0 percent instead of failing the page.
func (s *Service) AdminDashboard(ctx context.Context, req AuthRequest) (AdminDashboard, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, _ directory.Identity) (AdminDashboard, error) {
		users, err := s.dir.List(ctx)
		if err != nil {
			return AdminDashboard{}, apperr.Storage(err)
		}
		stats := DashboardStats{Total: len(users), PerRole: make(map[directory.Role]int, len(directory.Roles))}
		for _, r := range directory.Roles {
			stats.PerRole[r] = 0
		}
		for _, u := range users {
			stats.PerRole[u.Role]++
		}

		cfg := s.config.Current()
		today, err := s.records.QueryDay(ctx, attendance.DateOf(s.now(), cfg.Location))
		if err != nil {
			log.Warn().Err(err).Msg("dashboard attendance read failed")
		} else {
			present := make(map[string]bool)
			for _, rec := range today {
				present[rec.SubjectID] = true
			}
			stats.PresentToday = len(present)
			if stats.Total > 0 {
				stats.AttendancePercent = int(math.Round(float64(stats.PresentToday) / float64(stats.Total) * 100))
			}
		}

		recent := make([]directory.Identity, 0, 5)
		for i := len(users) - 1; i >= 0 && len(recent) < 5; i-- {
			recent = append(recent, users[i])
		}
		return AdminDashboard{Stats: stats, Recent: recent}, nil
	})
}

// ListUsers returns every identity.
func (s *Service) ListUsers(ctx context.Context, req AuthRequest) ([]directory.Identity, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, _ directory.Identity) ([]directory.Identity, error) {
		users, err := s.dir.List(ctx)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		return users, nil
	})
}

// UserInput is the editable part of an identity.
type UserInput struct {
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (in UserInput) validate(actor directory.Identity) (directory.Identity, error) {
	id := directory.Identity{
		SubjectID:   strings.TrimSpace(in.SubjectID),
		Email:       strings.TrimSpace(in.Email),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Status:      directory.StatusActive,
	}
	if id.SubjectID == "" || id.DisplayName == "" {
		return id, apperr.Newf(apperr.InvalidInput, "Subject id and name are required.")
	}
	if _, err := mail.ParseAddress(id.Email); err != nil {
		return id, apperr.Newf(apperr.InvalidInput, "Email address is not valid.")
	}
	role, err := directory.ParseRole(in.Role)
	if err != nil {
		return id, apperr.Newf(apperr.InvalidInput, "Unknown role %q.", in.Role)
	}
	if role.Privileged() && !actor.Role.Privileged() {
		return id, apperr.Newf(apperr.Forbidden, "Only super administrators can assign the %s role.", role)
	}
	id.Role = role
	return id, nil
}

// CreatedUser carries the one-time temporary password of a new account.
type CreatedUser struct {
	Identity     directory.Identity `json:"user"`
	TempPassword string             `json:"temp_password"`
}

// CreateUser adds an account with a generated temporary password and
// announces it. The announcement is best effort.
func (s *Service) CreateUser(ctx context.Context, req AuthRequest, in UserInput) (CreatedUser, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (CreatedUser, error) {
		id, err := in.validate(actor)
		if err != nil {
			return CreatedUser{}, err
		}
		temp, hash, err := newTempPassword()
		if err != nil {
			return CreatedUser{}, err
		}
		if err := s.dir.Create(ctx, directory.Account{Identity: id, PasswordHash: hash, CreatedAt: s.now()}); err != nil {
			return CreatedUser{}, dirErr(err)
		}
		log.Info().Str("subject_id", id.SubjectID).Str("by", actor.SubjectID).Msg("user created")
		s.announce(ctx, "New user", id.DisplayName+" joined as "+string(id.Role))
		return CreatedUser{Identity: id, TempPassword: temp}, nil
	})
}

// UpdateUser changes email, name and role.
func (s *Service) UpdateUser(ctx context.Context, req AuthRequest, in UserInput) (directory.Identity, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (directory.Identity, error) {
		id, err := in.validate(actor)
		if err != nil {
			return directory.Identity{}, err
		}
		current, err := s.target(ctx, actor, id.SubjectID)
		if err != nil {
			return directory.Identity{}, err
		}
		id.Status = current.Status
		if err := s.dir.Update(ctx, id); err != nil {
			return directory.Identity{}, dirErr(err)
		}
		return id, nil
	})
}

// ResetPassword replaces a subject's password with a new temporary one.
func (s *Service) ResetPassword(ctx context.Context, req AuthRequest, subjectID string) (string, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (string, error) {
		if _, err := s.target(ctx, actor, subjectID); err != nil {
			return "", err
		}
		temp, hash, err := newTempPassword()
		if err != nil {
			return "", err
		}
		if err := s.dir.SetPasswordHash(ctx, subjectID, hash); err != nil {
			return "", dirErr(err)
		}
		log.Info().Str("subject_id", subjectID).Str("by", actor.SubjectID).Msg("password reset")
		return temp, nil
	})
}

// SetUserStatus enables or disables an account. Admins cannot disable
// themselves.
func (s *Service) SetUserStatus(ctx context.Context, req AuthRequest, subjectID, status string) error {
	req.Capability = directory.CapabilityAdmin
	_, err := AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (struct{}, error) {
		st, err := directory.ParseStatus(status)
		if err != nil {
			return struct{}{}, apperr.Newf(apperr.InvalidInput, "Unknown status %q.", status)
		}
		if subjectID == actor.SubjectID && st != directory.StatusActive {
			return struct{}{}, apperr.Newf(apperr.Forbidden, "You cannot disable your own account.")
		}
		if _, err := s.target(ctx, actor, subjectID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, dirErr(s.dir.SetStatus(ctx, subjectID, st))
	})
	return err
}

// DeleteUser removes an account and its credentials.
func (s *Service) DeleteUser(ctx context.Context, req AuthRequest, subjectID string) error {
	req.Capability = directory.CapabilityAdmin
	_, err := AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (struct{}, error) {
		if subjectID == actor.SubjectID {
			return struct{}{}, apperr.Newf(apperr.Forbidden, "You cannot delete your own account.")
		}
		if _, err := s.target(ctx, actor, subjectID); err != nil {
			return struct{}{}, err
		}
		if err := s.dir.Delete(ctx, subjectID); err != nil {
			return struct{}{}, dirErr(err)
		}
		log.Info().Str("subject_id", subjectID).Str("by", actor.SubjectID).Msg("user deleted")
		return struct{}{}, nil
	})
	return err
}

// BindCredential maps a QR credential hash to a subject.
func (s *Service) BindCredential(ctx context.Context, req AuthRequest, subjectID, credentialHash string) error {
	req.Capability = directory.CapabilityAdmin
	_, err := AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (struct{}, error) {
		hash := strings.TrimSpace(credentialHash)
		if hash == "" || len(hash) < s.config.Current().MinCredentialLength {
			return struct{}{}, apperr.New(apperr.MalformedCredential)
		}
		if _, err := s.target(ctx, actor, subjectID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, dirErr(s.dir.BindCredential(ctx, hash, subjectID))
	})
	return err
}

// RecordAbsence writes a Leave or Sick record for a subject.
func (s *Service) RecordAbsence(ctx context.Context, req AuthRequest, subjectID, status, note string) (attendance.Record, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (attendance.Record, error) {
		st, err := attendance.ParseStatus(status)
		if err != nil {
			return attendance.Record{}, apperr.Newf(apperr.InvalidInput, "Unknown status %q.", status)
		}
		who, err := s.target(ctx, actor, subjectID)
		if err != nil {
			return attendance.Record{}, err
		}
		return s.engine.RecordAbsence(ctx, who, st, strings.TrimSpace(note))
	})
}

// GetSettings returns the portal settings.
func (s *Service) GetSettings(ctx context.Context, req AuthRequest) (settings.Settings, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, _ directory.Identity) (settings.Settings, error) {
		st, err := s.settings.Get(ctx)
		if err != nil {
			return settings.Settings{}, apperr.Storage(err)
		}
		return st, nil
	})
}

// SaveSettings stores app name, description and ticker text. The maintenance
// flag is left untouched.
func (s *Service) SaveSettings(ctx context.Context, req AuthRequest, in settings.Settings) (settings.Settings, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, _ directory.Identity) (settings.Settings, error) {
		st, err := s.settings.Get(ctx)
		if err != nil {
			return settings.Settings{}, apperr.Storage(err)
		}
		st.AppName = strings.TrimSpace(in.AppName)
		st.AppDesc = strings.TrimSpace(in.AppDesc)
		st.InfoTicker = strings.TrimSpace(in.InfoTicker)
		st = st.Defaults()
		if err := s.settings.Save(ctx, st); err != nil {
			return settings.Settings{}, apperr.Storage(err)
		}
		return st, nil
	})
}

// SetMaintenance toggles maintenance mode.
func (s *Service) SetMaintenance(ctx context.Context, req AuthRequest, on bool) error {
	req.Capability = directory.CapabilityAdmin
	_, err := AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (struct{}, error) {
		st, err := s.settings.Get(ctx)
		if err != nil {
			return struct{}{}, apperr.Storage(err)
		}
		st.Maintenance = on
		if err := s.settings.Save(ctx, st); err != nil {
			return struct{}{}, apperr.Storage(err)
		}
		log.Warn().Bool("maintenance", on).Str("by", actor.SubjectID).Msg("maintenance mode changed")
		return struct{}{}, nil
	})
	return err
}

// ReloadResult summarises the configuration after a reload.
type ReloadResult struct {
	Windows   string `json:"windows"`
	Timezone  string `json:"timezone"`
	RateLimit int    `json:"rate_limit"`
}

// ReloadConfig re-reads configuration. An invalid configuration is rejected
// and the previous one stays active.
func (s *Service) ReloadConfig(ctx context.Context, req AuthRequest) (ReloadResult, error) {
	req.Capability = directory.CapabilityAdmin
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, actor directory.Identity) (ReloadResult, error) {
		next, err := s.config.Reload()
		if err != nil {
			log.Warn().Err(err).Str("by", actor.SubjectID).Msg("configuration reload rejected")
			return ReloadResult{}, apperr.Wrap(apperr.InvalidInput, err)
		}
		log.Info().Str("by", actor.SubjectID).Msg("configuration reload requested")
		return ReloadResult{Windows: next.Window.String(), Timezone: next.Timezone, RateLimit: next.RateLimit}, nil
	})
}

// target loads the subject an admin acts on. Only privileged admins may act
// on privileged accounts.
func (s *Service) target(ctx context.Context, actor directory.Identity, subjectID string) (directory.Identity, error) {
	who, err := s.dir.LookupBySubject(ctx, strings.TrimSpace(subjectID))
	if err != nil {
		return directory.Identity{}, apperr.Storage(err)
	}
	if who == nil {
		return directory.Identity{}, apperr.New(apperr.NotFound)
	}
	if who.Role.Privileged() && !actor.Role.Privileged() {
		return directory.Identity{}, apperr.Newf(apperr.Forbidden, "Only super administrators can manage this account.")
	}
	return *who, nil
}

func (s *Service) announce(ctx context.Context, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Broadcast(ctx, title, message); err != nil {
		log.Warn().Err(err).Msg("broadcast failed")
	}
}

func newTempPassword() (plain, hash string, err error) {
	plain, err = auth.TempPassword()
	if err != nil {
		return "", "", apperr.Storage(err)
	}
	hash, err = auth.HashPassword(plain)
	if err != nil {
		return "", "", apperr.Storage(err)
	}
	return plain, hash, nil
}
