package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"presensi/internal/apperr"
	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/config"
	"presensi/internal/directory"
	"presensi/internal/gatekeeper"
	"presensi/internal/memstore"
	"presensi/internal/portal"
	"presensi/internal/ratelimit"
	"presensi/internal/session"
)

var wib = time.FixedZone("WIB", 7*3600)

type photoSink struct {
	data        []byte
	contentType string
}

func (p *photoSink) StorePhoto(_ context.Context, data []byte, contentType, _ string) (string, error) {
	p.data, p.contentType = data, contentType
	return "https://cdn.example/scan.jpg", nil
}

type server struct {
	router  *gin.Engine
	tokens  *session.Service
	devices *auth.Issuer
	limiter *ratelimit.Limiter
	photos  *photoSink
	now     time.Time
}

const password = "correct-password"

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s := &server{now: time.Date(2026, 3, 2, 6, 45, 0, 0, wib), photos: &photoSink{}}
	clock := func() time.Time { return s.now }

	ws := config.WindowStrings{CheckInOpen: "06:30", CheckInDue: "07:00", CheckOutOpen: "15:00", CheckOutDue: "16:00"}
	w, err := config.ParseWindows(ws)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.App{RateLimit: 1000, RateWindow: time.Minute, AntiSpamWindow: 180 * time.Second, MinCredentialLength: 8, Windows: ws, Window: w, Location: wib}
	holder := config.NewHolder(cfg, func() (config.App, error) { return cfg, nil })

	dir := memstore.NewDirectory()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []directory.Account{
		{Identity: directory.Identity{SubjectID: "ADM1", Email: "admin@school.id", DisplayName: "Ana", Role: directory.RoleAdmin, Status: directory.StatusActive}, PasswordHash: hash},
		{Identity: directory.Identity{SubjectID: "T1", Email: "t1@school.id", DisplayName: "Budi", Role: directory.RoleTeacher, Status: directory.StatusActive}, PasswordHash: hash},
	} {
		if err := dir.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	_ = dir.BindCredential(ctx, "qr-hash-t1", "T1")
	records := memstore.NewRecords()

	tokens, _ := session.NewService([]byte("secret"), session.DefaultTTL)
	s.tokens = tokens.WithClock(clock)
	s.limiter = ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Limit: 1000, Window: time.Minute})
	gate := gatekeeper.New(s.tokens, dir, s.limiter).WithClock(clock)
	engine := attendance.NewEngine(dir, records, s.photos, func() attendance.Policy {
		return attendance.PolicyFromConfig(holder.Current())
	}).WithClock(clock)
	svc := portal.New(portal.Deps{
		Directory: dir, Records: records, Settings: memstore.NewSettings(),
		Tokens: s.tokens, Limiter: s.limiter, Gate: gate, Engine: engine, Config: holder,
	}).WithClock(clock)

	s.devices, err = auth.NewIssuer("device-key", "presensi-kiosk", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	s.router = gin.New()
	New(svc, s.devices, 1<<20).Register(s.router, nil)
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) session(t *testing.T, subject string) map[string]string {
	t.Helper()
	tok, err := s.tokens.Issue(subject)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{HeaderSession: tok}
}

func (s *server) kiosk(t *testing.T) map[string]string {
	t.Helper()
	pair, err := s.devices.Issue("kiosk-1", "ADM1")
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{"Authorization": "Bearer " + pair.AccessToken}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apperr.Code {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Code
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "admin@school.id", "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var res portal.LoginResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Token == "" || res.Identity.SubjectID != "ADM1" {
		t.Fatalf("result = %+v", res)
	}

	w = s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "admin@school.id", "password": "nope-nope"}, nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != apperr.InvalidCredentials {
		t.Fatalf("wrong password: %d %s", w.Code, w.Body.String())
	}
}

func TestAdminRoutesAuthorization(t *testing.T) {
	s := newServer(t)
	tampered := s.session(t, "ADM1")
	tampered[HeaderClientRole] = "Super Admin"
	tampered[HeaderClientEmail] = "admin@school.id"

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		code    apperr.Code
	}{
		{"no token", nil, http.StatusUnauthorized, apperr.NoToken},
		{"garbage token", map[string]string{HeaderSession: "x.y"}, http.StatusUnauthorized, apperr.MalformedToken},
		{"teacher", s.session(t, "T1"), http.StatusForbidden, apperr.InsufficientRole},
		{"tampered snapshot", tampered, http.StatusForbidden, apperr.TamperedRole},
		{"admin", s.session(t, "ADM1"), http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/v1/admin/users", nil, tc.headers)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.code != "" && errorCode(t, w) != tc.code {
				t.Fatalf("code = %s, want %s", errorCode(t, w), tc.code)
			}
		})
	}
}

func TestBearerSessionAccepted(t *testing.T) {
	s := newServer(t)
	tok, _ := s.tokens.Issue("T1")
	w := s.do(t, http.MethodGet, "/v1/teacher/dashboard", nil, map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimitedIs429(t *testing.T) {
	s := newServer(t)
	s.limiter.SetConfig(ratelimit.Config{Limit: 2, Window: time.Minute})
	h := s.session(t, "ADM1")
	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodGet, "/v1/admin/dashboard", nil, h); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, w.Code)
		}
	}
	w := s.do(t, http.MethodGet, "/v1/admin/dashboard", nil, h)
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != apperr.RateLimited {
		t.Fatalf("third request: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}

	login := map[string]string{"email": "admin@school.id", "password": password}
	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodPost, "/v1/auth/login", login, nil); w.Code != http.StatusOK {
			t.Fatalf("login %d: %d", i+1, w.Code)
		}
	}
	w = s.do(t, http.MethodPost, "/v1/auth/login", login, nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "60" {
		t.Fatalf("login when limited: %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestDeviceRegistration(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/devices/register", map[string]string{"device_id": "kiosk-lobby"}, s.session(t, "T1"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("teacher registering device: %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/v1/devices/register", map[string]string{"device_id": "kiosk-lobby"}, s.session(t, "ADM1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatal(err)
	}
	claims, err := s.devices.Parse(pair.AccessToken, auth.KindAccess)
	if err != nil || claims.DeviceID != "kiosk-lobby" || claims.RegisteredBy != "ADM1" {
		t.Fatalf("claims = %+v (%v)", claims, err)
	}

	w = s.do(t, http.MethodPost, "/v1/devices/refresh", map[string]string{"refresh_token": pair.RefreshToken}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/v1/devices/refresh", map[string]string{"refresh_token": pair.AccessToken}, nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != apperr.MalformedToken {
		t.Fatalf("refresh with access token: %d %s", w.Code, w.Body.String())
	}
}

func TestSubmitScan(t *testing.T) {
	s := newServer(t)
	kiosk := s.kiosk(t)

	deviceRejections := []struct {
		name    string
		headers map[string]string
		code    apperr.Code
	}{
		{"no device token", nil, apperr.NoToken},
		{"garbage device token", map[string]string{"Authorization": "Bearer nope"}, apperr.MalformedToken},
	}
	for _, tc := range deviceRejections {
		w := s.do(t, http.MethodPost, "/v1/scans", map[string]string{"credential_hash": "qr-hash-t1"}, tc.headers)
		if w.Code != http.StatusUnauthorized || errorCode(t, w) != tc.code {
			t.Fatalf("%s: %d %s", tc.name, w.Code, w.Body.String())
		}
	}

	photo := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg"))
	w := s.do(t, http.MethodPost, "/v1/scans", map[string]string{"credential_hash": "qr-hash-t1", "photo": photo}, kiosk)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var acc attendance.Acceptance
	if err := json.Unmarshal(w.Body.Bytes(), &acc); err != nil {
		t.Fatal(err)
	}
	if acc.Record.Status != attendance.StatusCheckIn || !acc.FirstOfDay || acc.Record.PhotoURL == "" {
		t.Fatalf("acceptance = %+v", acc)
	}
	if string(s.photos.data) != "jpeg" || s.photos.contentType != "image/jpeg" {
		t.Fatalf("photo = %q %q", s.photos.data, s.photos.contentType)
	}

	tests := []struct {
		name   string
		hash   string
		status int
		code   apperr.Code
	}{
		{"duplicate", "qr-hash-t1", http.StatusConflict, apperr.DuplicateStatus},
		{"unknown", "qr-hash-unknown", http.StatusNotFound, apperr.UnknownCredential},
		{"malformed", "abc", http.StatusUnprocessableEntity, apperr.MalformedCredential},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/scans", map[string]string{"credential_hash": tc.hash}, kiosk)
			if w.Code != tc.status || errorCode(t, w) != tc.code {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	w = s.do(t, http.MethodGet, "/v1/scanner/feed", nil, kiosk)
	if w.Code != http.StatusOK {
		t.Fatalf("feed: %d", w.Code)
	}
	var feed portal.ScannerFeed
	if err := json.Unmarshal(w.Body.Bytes(), &feed); err != nil {
		t.Fatal(err)
	}
	if len(feed.Logs) != 1 || feed.First == nil || feed.Stats[attendance.StatusCheckIn] != 1 {
		t.Fatalf("feed = %+v", feed)
	}
}

func TestSubmitScanMultipart(t *testing.T) {
	s := newServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("credential_hash", "qr-hash-t1")
	fw, _ := mw.CreateFormFile("photo", "cam.jpg")
	_, _ = fw.Write([]byte("multipart-jpeg"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range s.kiosk(t) {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if string(s.photos.data) != "multipart-jpeg" {
		t.Fatalf("photo = %q", s.photos.data)
	}
}

func TestSubmitScanMultipartPhotoField(t *testing.T) {
	s := newServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("credential_hash", "qr-hash-t1")
	_ = mw.WriteField("photo", "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("png")))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range s.kiosk(t) {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if string(s.photos.data) != "png" || s.photos.contentType != "image/png" {
		t.Fatalf("photo = %q %q", s.photos.data, s.photos.contentType)
	}
}

func TestUndecodablePhotoIsDropped(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/v1/scans", map[string]string{"credential_hash": "qr-hash-t1", "photo": "%%%not-base64"}, s.kiosk(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if s.photos.data != nil {
		t.Fatal("photo store called with undecodable photo")
	}
}

func TestAdminUserLifecycle(t *testing.T) {
	s := newServer(t)
	admin := s.session(t, "ADM1")

	w := s.do(t, http.MethodPost, "/v1/admin/users", portal.UserInput{SubjectID: "S9", Email: "s9@school.id", DisplayName: "Eka", Role: "Staff"}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/v1/admin/users", portal.UserInput{SubjectID: "S9", Email: "x@school.id", DisplayName: "Eka", Role: "Staff"}, admin)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create: %d", w.Code)
	}
	w = s.do(t, http.MethodPut, "/v1/admin/users/S9/credential", map[string]string{"credential_hash": "qr-hash-s9"}, admin)
	if w.Code != http.StatusNoContent {
		t.Fatalf("bind: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/v1/admin/users/S9/absences", map[string]string{"status": "Leave", "note": "family"}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("absence: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPut, "/v1/admin/users/S9/status", map[string]string{"status": "Disabled"}, admin)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}
	w = s.do(t, http.MethodDelete, "/v1/admin/users/S9", nil, admin)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	w = s.do(t, http.MethodDelete, "/v1/admin/users/S9", nil, admin)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete twice: %d", w.Code)
	}
}

func TestStatusForCoversEveryCode(t *testing.T) {
	codes := []apperr.Code{
		apperr.NoToken, apperr.MalformedToken, apperr.SignatureMismatch, apperr.Expired,
		apperr.UnknownSubject, apperr.InsufficientRole, apperr.TamperedRole, apperr.TamperedEmail,
		apperr.AccountDisabled, apperr.RateLimited, apperr.UnknownCredential, apperr.MalformedCredential,
		apperr.DuplicateStatus, apperr.TooFrequent, apperr.StorageUnavailable, apperr.InvalidCredentials,
		apperr.Maintenance, apperr.NotFound, apperr.Conflict, apperr.InvalidInput, apperr.WrongPassword,
		apperr.Forbidden,
	}
	for _, c := range codes {
		if StatusFor(c) == http.StatusInternalServerError {
			t.Errorf("%s has no status", c)
		}
	}
}
