// Package attendance classifies kiosk scans and records accepted ones.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the attendance status of a record.
type Status string

const (
	StatusCheckIn  Status = "CheckIn"
	StatusCheckOut Status = "CheckOut"
	StatusOvertime Status = "Overtime"
	StatusLeave    Status = "Leave"
	StatusSick     Status = "Sick"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusCheckIn, StatusCheckOut, StatusOvertime, StatusLeave, StatusSick}

// Scanned reports whether the status comes from a kiosk scan rather than an
// administrator-recorded absence.
func (s Status) Scanned() bool {
	return s == StatusCheckIn || s == StatusCheckOut || s == StatusOvertime
}

// ParseStatus accepts canonical names and legacy labels.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkin", "check-in", "masuk":
		return StatusCheckIn, nil
	case "checkout", "check-out", "pulang":
		return StatusCheckOut, nil
	case "overtime", "lembur":
		return StatusOvertime, nil
	case "leave", "izin":
		return StatusLeave, nil
	case "sick", "sakit":
		return StatusSick, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// DateLayout is the layout of Record.Date.
const DateLayout = "2006-01-02"

// Record is one accepted attendance entry. Records are append-only; at most
// one record exists per (SubjectID, Date, Status).
type Record struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	At        time.Time `json:"time"`
	SubjectID string    `json:"subject_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	PhotoURL  string    `json:"photo_url"`
}

// ErrDuplicate is returned by a RecordStore when (subject, date, status)
// already exists.
var ErrDuplicate = errors.New("attendance: duplicate status for subject and date")

// RecordStore is the attendance log boundary.
type RecordStore interface {
	// Append writes rec, returning ErrDuplicate on a (subject, date, status) clash.
	Append(ctx context.Context, rec Record) error
	// QuerySubjectDay returns the subject's records for date, oldest first.
	QuerySubjectDay(ctx context.Context, subjectID, date string) ([]Record, error)
	// QueryDay returns every record for date, newest first.
	QueryDay(ctx context.Context, date string) ([]Record, error)
}

// DateOf formats t as a record date in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
