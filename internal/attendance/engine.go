package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"presensi/internal/apperr"
	"presensi/internal/config"
	"presensi/internal/directory"
)

// Scan is one kiosk scan event.
type Scan struct {
	CredentialHash   string
	CapturedAt       time.Time // kiosk clock, informational only
	Photo            []byte
	PhotoContentType string
	PhotoName        string
}

// Acceptance is returned for an accepted scan.
type Acceptance struct {
	Record     Record `json:"record"`
	Qualifier  string `json:"qualifier"`
	FirstOfDay bool   `json:"is_first_of_day"`
}

// PhotoStore persists scan photos and returns their public URL.
type PhotoStore interface {
	StorePhoto(ctx context.Context, data []byte, contentType, suggestedName string) (string, error)
}

// Policy is the part of the configuration the engine reads on every scan.
type Policy struct {
	Windows             config.Windows
	Location            *time.Location
	AntiSpamWindow      time.Duration
	MinCredentialLength int
}

// PolicyFromConfig extracts the engine policy from an App snapshot.
func PolicyFromConfig(c config.App) Policy {
	return Policy{
		Windows:             c.Window,
		Location:            c.Location,
		AntiSpamWindow:      c.AntiSpamWindow,
		MinCredentialLength: c.MinCredentialLength,
	}
}

// Engine runs the check-in pipeline. Check-and-append is serialised per
// subject; the store's uniqueness rule backs it up across processes.
type Engine struct {
	credentials directory.CredentialLookup
	records     RecordStore
	photos      PhotoStore
	policy      func() Policy
	now         func() time.Time
	locks       *keyLock
	onAccept    []func(context.Context, Acceptance)
	onReject    func(apperr.Code)
}

// NewEngine builds an engine. photos may be nil.
func NewEngine(credentials directory.CredentialLookup, records RecordStore, photos PhotoStore, policy func() Policy) *Engine {
	return &Engine{
		credentials: credentials,
		records:     records,
		photos:      photos,
		policy:      policy,
		now:         time.Now,
		locks:       newKeyLock(),
	}
}

// WithClock overrides the clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// OnAccept registers a hook run after a record is written. Hooks must not
// block for long; their failures are theirs to log.
func (e *Engine) OnAccept(fn func(context.Context, Acceptance)) *Engine {
	e.onAccept = append(e.onAccept, fn)
	return e
}

// OnReject registers an observer for rejection codes.
func (e *Engine) OnReject(fn func(apperr.Code)) *Engine {
	e.onReject = fn
	return e
}

// Submit processes one scan.
func (e *Engine) Submit(ctx context.Context, scan Scan) (Acceptance, error) {
	acc, err := e.submit(ctx, scan)
	if err != nil {
		if e.onReject != nil {
			e.onReject(apperr.CodeOf(err))
		}
		return Acceptance{}, err
	}
	for _, fn := range e.onAccept {
		fn(ctx, acc)
	}
	return acc, nil
}

func (e *Engine) submit(ctx context.Context, scan Scan) (Acceptance, error) {
	p := e.policy()
	hash := strings.TrimSpace(scan.CredentialHash)
	if hash == "" || len(hash) < p.MinCredentialLength {
		return Acceptance{}, apperr.New(apperr.MalformedCredential)
	}

	who, err := e.credentials.LookupByCredential(ctx, hash)
	if err != nil {
		return Acceptance{}, apperr.Storage(err)
	}
	if who == nil || who.Status != directory.StatusActive {
		return Acceptance{}, apperr.New(apperr.UnknownCredential)
	}

	now := e.now()
	mode, qualifier := Classify(MinuteOfDay(now, p.Location), p.Windows)
	date := DateOf(now, p.Location)

	release := e.locks.Lock(who.SubjectID)
	defer release()

	today, err := e.records.QuerySubjectDay(ctx, who.SubjectID, date)
	if err != nil {
		return Acceptance{}, apperr.Storage(err)
	}
	var latest time.Time
	for _, r := range today {
		if r.Status == mode {
			return Acceptance{}, apperr.New(apperr.DuplicateStatus)
		}
		if r.Status.Scanned() && r.At.After(latest) {
			latest = r.At
		}
	}
	if !latest.IsZero() && now.Sub(latest) < p.AntiSpamWindow {
		return Acceptance{}, apperr.New(apperr.TooFrequent)
	}

	first := false
	if mode == StatusCheckIn {
		first = e.firstCheckInOfDay(ctx, date)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Date:      date,
		At:        now,
		SubjectID: who.SubjectID,
		Name:      who.DisplayName,
		Role:      string(who.Role),
		Status:    mode,
		Note:      qualifier,
		PhotoURL:  e.storePhoto(ctx, who.SubjectID, now, scan),
	}
	if err := e.append(ctx, rec); err != nil {
		return Acceptance{}, err
	}
	log.Info().Str("subject_id", rec.SubjectID).Str("status", string(mode)).Str("note", qualifier).Bool("first_of_day", first).Msg("scan accepted")
	return Acceptance{Record: rec, Qualifier: qualifier, FirstOfDay: first}, nil
}

// RecordAbsence writes a Leave or Sick record for who under the same
// one-record-per-status rule. Absences skip the anti-spam window.
func (e *Engine) RecordAbsence(ctx context.Context, who directory.Identity, status Status, note string) (Record, error) {
	if status != StatusLeave && status != StatusSick {
		return Record{}, apperr.Newf(apperr.InvalidInput, "Absence status must be Leave or Sick.")
	}
	p := e.policy()
	now := e.now()
	date := DateOf(now, p.Location)

	release := e.locks.Lock(who.SubjectID)
	defer release()

	today, err := e.records.QuerySubjectDay(ctx, who.SubjectID, date)
	if err != nil {
		return Record{}, apperr.Storage(err)
	}
	for _, r := range today {
		if r.Status == status {
			return Record{}, apperr.New(apperr.DuplicateStatus)
		}
	}
	rec := Record{
		ID:        uuid.NewString(),
		Date:      date,
		At:        now,
		SubjectID: who.SubjectID,
		Name:      who.DisplayName,
		Role:      string(who.Role),
		Status:    status,
		Note:      note,
	}
	if err := e.append(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (e *Engine) append(ctx context.Context, rec Record) error {
	if err := e.records.Append(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return apperr.New(apperr.DuplicateStatus)
		}
		return apperr.Storage(err)
	}
	return nil
}

// firstCheckInOfDay is a gamification signal; a failed read reports false
// rather than failing the scan.
func (e *Engine) firstCheckInOfDay(ctx context.Context, date string) bool {
	day, err := e.records.QueryDay(ctx, date)
	if err != nil {
		log.Warn().Err(err).Str("date", date).Msg("early bird lookup failed")
		return false
	}
	for _, r := range day {
		if r.Status == StatusCheckIn {
			return false
		}
	}
	return true
}

// storePhoto uploads the scan photo. Failures leave the record without a photo.
func (e *Engine) storePhoto(ctx context.Context, subjectID string, now time.Time, scan Scan) string {
	if len(scan.Photo) == 0 || e.photos == nil {
		return ""
	}
	name := scan.PhotoName
	if name == "" {
		name = subjectID + "_" + now.Format("20060102_150405") + ".jpg"
	}
	url, err := e.photos.StorePhoto(ctx, scan.Photo, scan.PhotoContentType, name)
	if err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID).Msg("photo upload failed, recording scan without photo")
		return ""
	}
	return url
}
