package portal

import (
	"context"

	"presensi/internal/apperr"
	"presensi/internal/attendance"
	"presensi/internal/directory"
)

// TeacherDashboard is the teacher landing page.
type TeacherDashboard struct {
	Identity  directory.Identity  `json:"user"`
	Today     []attendance.Record `json:"today"`
	Mode      attendance.Status   `json:"current_mode"`
	Qualifier string              `json:"current_qualifier"`
	Windows   string              `json:"windows"`
}

// TeacherDashboard returns the caller's own records for today and what a scan
// right now would be classified as.
func (s *Service) TeacherDashboard(ctx context.Context, req AuthRequest) (TeacherDashboard, error) {
	req.Capability = directory.CapabilityTeacher
	return AuthorizeAndFetch(ctx, s, req, func(ctx context.Context, who directory.Identity) (TeacherDashboard, error) {
		cfg := s.config.Current()
		now := s.now()
		today, err := s.records.QuerySubjectDay(ctx, who.SubjectID, attendance.DateOf(now, cfg.Location))
		if err != nil {
			return TeacherDashboard{}, apperr.Storage(err)
		}
		mode, qualifier := attendance.Classify(attendance.MinuteOfDay(now, cfg.Location), cfg.Window)
		return TeacherDashboard{
			Identity:  who,
			Today:     today,
			Mode:      mode,
			Qualifier: qualifier,
			Windows:   cfg.Window.String(),
		}, nil
	})
}
