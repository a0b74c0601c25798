package attendance

import (
	"fmt"
	"time"

	"presensi/internal/config"
)

// Qualifiers that carry no magnitude.
const (
	QualifierEarly  = "Early"
	QualifierOnTime = "OnTime"
	QualifierNormal = "Normal"
)

// Classify maps a minute-of-day onto the configured windows. Boundaries are
// inclusive on both ends of their named window, so ties go to the earlier,
// more lenient window. Minutes after check-out due but before the overtime
// start still count as a normal check-out.
func Classify(minute int, w config.Windows) (Status, string) {
	switch {
	case minute < w.CheckInOpen:
		return StatusCheckIn, QualifierEarly
	case minute <= w.CheckInDue:
		return StatusCheckIn, QualifierOnTime
	case minute < w.CheckOutOpen:
		return StatusCheckIn, fmt.Sprintf("Late by %d minutes", minute-w.CheckInDue)
	case minute <= w.CheckOutDue, minute < w.OvertimeStart:
		return StatusCheckOut, QualifierNormal
	default:
		return StatusOvertime, fmt.Sprintf("Overtime by %d minutes", minute-w.CheckOutDue)
	}
}

// MinuteOfDay returns the minute-of-day of t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}
