package notify

import (
	"context"
	"fmt"

	"presensi/internal/queue"
)

// Sender is the subset of Client used by the worker.
type Sender interface {
	NotifySubject(ctx context.Context, subjectID, title, message string) error
}

// CheckInMessage renders the push text for an accepted scan.
func CheckInMessage(ev queue.CheckInEvent) (title, message string) {
	title = "Attendance recorded"
	message = fmt.Sprintf("%s: %s at %s", ev.Name, ev.Status, ev.At.Format("15:04"))
	if ev.Qualifier != "" {
		message += " (" + ev.Qualifier + ")"
	}
	if ev.FirstOfDay {
		title = "Early bird!"
		message += ". You are the first to arrive today."
	}
	return title, message
}

// HandleMessage processes one queue message. Unknown types are ignored.
func HandleMessage(ctx context.Context, s Sender, msg queue.Message) error {
	if msg.Type != queue.TypeCheckInAccepted {
		return nil
	}
	var ev queue.CheckInEvent
	if err := msg.Decode(&ev); err != nil {
		return fmt.Errorf("notify: decode %s: %w", msg.Type, err)
	}
	title, message := CheckInMessage(ev)
	return s.NotifySubject(ctx, ev.SubjectID, title, message)
}
