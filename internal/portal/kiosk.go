package portal

import (
	"context"

	"presensi/internal/apperr"
	"presensi/internal/attendance"
)

// FeedSize is how many recent records the scanner screen shows.
const FeedSize = 15

// ScannerFeed is the live activity shown next to the kiosk camera.
type ScannerFeed struct {
	Logs  []attendance.Record       `json:"logs"`
	Stats map[attendance.Status]int `json:"stats"`
	First *attendance.Record        `json:"first"`
}

// ScannerFeed returns today's latest records, counts per status and the
// first record of the day.
func (s *Service) ScannerFeed(ctx context.Context) (ScannerFeed, error) {
	cfg := s.config.Current()
	day, err := s.records.QueryDay(ctx, attendance.DateOf(s.now(), cfg.Location))
	if err != nil {
		return ScannerFeed{}, apperr.Storage(err)
	}
	feed := ScannerFeed{
		Logs:  day,
		Stats: make(map[attendance.Status]int, len(attendance.Statuses)),
	}
	for _, st := range attendance.Statuses {
		feed.Stats[st] = 0
	}
	for _, r := range day {
		feed.Stats[r.Status]++
	}
	if len(day) > 0 {
		first := day[len(day)-1]
		feed.First = &first
	}
	if len(feed.Logs) > FeedSize {
		feed.Logs = feed.Logs[:FeedSize]
	}
	if feed.Logs == nil {
		feed.Logs = []attendance.Record{}
	}
	return feed, nil
}

// KioskInfo is what the kiosk header displays.
type KioskInfo struct {
	AppName    string `json:"app_name"`
	InfoTicker string `json:"info_ticker"`
	Windows    string `json:"windows"`
	Timezone   string `json:"timezone"`
}

// KioskSettings returns the display settings for kiosks.
func (s *Service) KioskSettings(ctx context.Context) (KioskInfo, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return KioskInfo{}, apperr.Storage(err)
	}
	cfg := s.config.Current()
	return KioskInfo{
		AppName:    st.AppName,
		InfoTicker: st.InfoTicker,
		Windows:    cfg.Window.String(),
		Timezone:   cfg.Timezone,
	}, nil
}

// SubmitScan runs a kiosk scan through the check-in engine.
func (s *Service) SubmitScan(ctx context.Context, scan attendance.Scan) (attendance.Acceptance, error) {
	return s.engine.Submit(ctx, scan)
}
