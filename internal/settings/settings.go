// Package settings holds the portal settings editable from the admin screens.
package settings

import "context"

// Settings are runtime values stored alongside the directory.
type Settings struct {
	AppName     string `json:"app_name"`
	AppDesc     string `json:"app_desc"`
	InfoTicker  string `json:"info_ticker"`
	Maintenance bool   `json:"maintenance"`
}

// Defaults fills empty values.
func (s Settings) Defaults() Settings {
	if s.AppName == "" {
		s.AppName = "Presensi"
	}
	if s.AppDesc == "" {
		s.AppDesc = "Integrated administration system"
	}
	if s.InfoTicker == "" {
		s.InfoTicker = "Welcome"
	}
	return s
}

// Store persists Settings.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}
