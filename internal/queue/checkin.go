package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"presensi/internal/attendance"
)

// CheckInEvent is the body of a checkin.accepted message.
type CheckInEvent struct {
	RecordID   string    `json:"record_id"`
	SubjectID  string    `json:"subject_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Qualifier  string    `json:"qualifier"`
	At         time.Time `json:"at"`
	FirstOfDay bool      `json:"is_first_of_day"`
}

// EventFromAcceptance builds the event for an accepted scan.
func EventFromAcceptance(acc attendance.Acceptance) CheckInEvent {
	return CheckInEvent{
		RecordID:   acc.Record.ID,
		SubjectID:  acc.Record.SubjectID,
		Name:       acc.Record.Name,
		Status:     string(acc.Record.Status),
		Qualifier:  acc.Qualifier,
		At:         acc.Record.At,
		FirstOfDay: acc.FirstOfDay,
	}
}

// AcceptanceHook returns an Engine.OnAccept hook publishing to q. Publish
// failures are logged and never fail the scan.
func AcceptanceHook(q Queue) func(context.Context, attendance.Acceptance) {
	return func(ctx context.Context, acc attendance.Acceptance) {
		msg, err := NewMessage(TypeCheckInAccepted, EventFromAcceptance(acc))
		if err == nil {
			err = q.Publish(ctx, msg)
		}
		if err != nil {
			log.Warn().Err(err).Str("subject_id", acc.Record.SubjectID).Msg("publish checkin event failed")
		}
	}
}
