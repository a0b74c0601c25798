package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseMinuteOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"06:30", 390, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{" 7:05 ", 425, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"12:5", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMinuteOfDay(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMinuteOfDay(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestParseWindows(t *testing.T) {
	w, err := ParseWindows(WindowStrings{CheckInOpen: "06:30", CheckInDue: "07:00", CheckOutOpen: "15:00", CheckOutDue: "16:00"})
	if err != nil {
		t.Fatal(err)
	}
	if w.OvertimeStart != w.CheckOutDue {
		t.Errorf("overtime default = %d", w.OvertimeStart)
	}
	if w.String() != "in 06:30-07:00, out 15:00-16:00, overtime 16:00" {
		t.Errorf("String() = %q", w.String())
	}

	_, err = ParseWindows(WindowStrings{CheckInOpen: "08:00", CheckInDue: "07:00", CheckOutOpen: "15:00", CheckOutDue: "16:00"})
	if err == nil {
		t.Error("accepted out-of-order windows")
	}
}

func TestLoadFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.yaml")
	yml := "rate_limit: 15\nwindows:\n  check_in_open: \"06:00\"\n  check_in_due: \"06:45\"\n  check_out_open: \"14:00\"\n  check_out_due: \"15:30\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORTAL_CONFIG", path)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CHECK_OUT_DUE", "16:15")
	t.Setenv("ANTI_SPAM_WINDOW", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit != 15 {
		t.Errorf("rate limit = %d", cfg.RateLimit)
	}
	if cfg.Window.CheckInOpen != 360 || cfg.Window.CheckOutDue != 975 {
		t.Errorf("window = %+v", cfg.Window)
	}
	if cfg.AntiSpamWindow != 2*time.Minute {
		t.Errorf("anti spam = %v", cfg.AntiSpamWindow)
	}
	if cfg.SessionSecret == "" {
		t.Error("dev secret not defaulted")
	}
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("PORTAL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("TIMEZONE", "UTC")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestHolderReload(t *testing.T) {
	first := App{RateLimit: 5}
	calls := 0
	h := NewHolder(first, func() (App, error) {
		calls++
		if calls == 2 {
			return App{}, errors.New("bad file")
		}
		return App{RateLimit: 15}, nil
	})
	var notified int
	h.OnReload(func(a App) { notified = a.RateLimit })

	if _, err := h.Reload(); err != nil {
		t.Fatal(err)
	}
	if h.Current().RateLimit != 15 || notified != 15 {
		t.Errorf("after reload: %d / %d", h.Current().RateLimit, notified)
	}
	if _, err := h.Reload(); err == nil {
		t.Fatal("expected error")
	}
	if h.Current().RateLimit != 15 {
		t.Errorf("failed reload replaced config")
	}
}
