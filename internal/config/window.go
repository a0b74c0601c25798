package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Windows holds the attendance boundaries as minute-of-day values.
type Windows struct {
	CheckInOpen   int
	CheckInDue    int
	CheckOutOpen  int
	CheckOutDue   int
	OvertimeStart int
}

// ParseWindows parses and orders the configured boundaries. An empty
// OvertimeStart defaults to CheckOutDue.
func ParseWindows(s WindowStrings) (Windows, error) {
	var w Windows
	fields := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"check_in_open", s.CheckInOpen, &w.CheckInOpen},
		{"check_in_due", s.CheckInDue, &w.CheckInDue},
		{"check_out_open", s.CheckOutOpen, &w.CheckOutOpen},
		{"check_out_due", s.CheckOutDue, &w.CheckOutDue},
	}
	for _, f := range fields {
		m, err := ParseMinuteOfDay(f.raw)
		if err != nil {
			return Windows{}, fmt.Errorf("config: %s: %w", f.name, err)
		}
		*f.dst = m
	}
	w.OvertimeStart = w.CheckOutDue
	if s.OvertimeStart != "" {
		m, err := ParseMinuteOfDay(s.OvertimeStart)
		if err != nil {
			return Windows{}, fmt.Errorf("config: overtime_start: %w", err)
		}
		w.OvertimeStart = m
	}
	if err := w.Validate(); err != nil {
		return Windows{}, err
	}
	return w, nil
}

// Validate checks that the boundaries are ordered through the day.
func (w Windows) Validate() error {
	seq := []int{w.CheckInOpen, w.CheckInDue, w.CheckOutOpen, w.CheckOutDue, w.OvertimeStart}
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			return fmt.Errorf("config: attendance windows out of order: %s", w)
		}
	}
	return nil
}

func (w Windows) String() string {
	return fmt.Sprintf("in %s-%s, out %s-%s, overtime %s",
		FormatMinuteOfDay(w.CheckInOpen), FormatMinuteOfDay(w.CheckInDue),
		FormatMinuteOfDay(w.CheckOutOpen), FormatMinuteOfDay(w.CheckOutDue),
		FormatMinuteOfDay(w.OvertimeStart))
}

// ParseMinuteOfDay parses "HH:MM" (24h).
func ParseMinuteOfDay(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatMinuteOfDay renders a minute-of-day as "HH:MM".
func FormatMinuteOfDay(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
