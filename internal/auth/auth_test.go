package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"presensi/internal/apperr"
)

func newIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-key", "presensi-kiosk", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss.WithClock(func() time.Time { return now })
}

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	iss := newIssuer(t, now)
	pair, err := iss.Issue("kiosk-1", "ADM1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Parse(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.DeviceID != "kiosk-1" || claims.RegisteredBy != "ADM1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := iss.Parse(pair.RefreshToken, KindAccess); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
	if _, err := iss.Parse(pair.AccessToken, KindRefresh); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	iss := newIssuer(t, now)
	pair, _ := iss.Issue("kiosk-1", "")

	other, _ := NewIssuer("other-key", "presensi-kiosk", time.Hour, time.Hour)
	if _, err := other.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Fatal("token signed with another key accepted")
	}

	wrongIssuer, _ := NewIssuer("test-key", "someone-else", time.Hour, time.Hour)
	if _, err := wrongIssuer.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Fatal("issuer mismatch accepted")
	}

	later := newIssuer(t, now.Add(2*time.Hour))
	if _, err := later.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Fatal("expired access token accepted")
	}
	if _, err := later.Refresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh within ttl: %v", err)
	}
}

func TestNewIssuerRequiresKey(t *testing.T) {
	if _, err := NewIssuer("", "x", time.Hour, time.Hour); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDeviceAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := newIssuer(t, time.Now())
	pair, _ := iss.Issue("kiosk-7", "")
	stale, _ := newIssuer(t, time.Now().Add(-2*time.Hour)).Issue("kiosk-7", "")
	forged, _ := NewIssuer("other-key", "presensi-kiosk", time.Hour, time.Hour)
	forgedPair, _ := forged.Issue("kiosk-7", "")

	r := gin.New()
	r.GET("/feed", DeviceAuth(iss), func(c *gin.Context) {
		claims, ok := DeviceFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.DeviceID)
	})

	cases := []struct {
		name   string
		header string
		want   int
		code   apperr.Code
	}{
		{"missing", "", http.StatusUnauthorized, apperr.NoToken},
		{"not bearer", "Basic abc", http.StatusUnauthorized, apperr.NoToken},
		{"garbage", "Bearer nope", http.StatusUnauthorized, apperr.MalformedToken},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized, apperr.MalformedToken},
		{"expired", "Bearer " + stale.AccessToken, http.StatusUnauthorized, apperr.Expired},
		{"wrong key", "Bearer " + forgedPair.AccessToken, http.StatusUnauthorized, apperr.SignatureMismatch},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "kiosk-7" {
				t.Fatalf("body = %q", w.Body.String())
			}
			if tc.code != "" {
				var body apperr.Body
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != tc.code {
					t.Fatalf("body = %s, want code %s", w.Body.String(), tc.code)
				}
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrPasswordTooShort {
		t.Fatalf("err = %v, want ErrPasswordTooShort", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatal("matching password rejected")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Fatal("wrong password accepted")
	}
	if CheckPassword("", "anything") {
		t.Fatal("empty hash matched")
	}
}

func TestTempPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := TempPassword()
		if err != nil {
			t.Fatalf("TempPassword: %v", err)
		}
		if len(p) != TempPasswordLength {
			t.Fatalf("len = %d", len(p))
		}
		if strings.ContainsAny(p, "0O1lI") {
			t.Fatalf("ambiguous character in %q", p)
		}
		seen[p] = true
	}
	if len(seen) < 49 {
		t.Fatalf("too many repeats: %d distinct", len(seen))
	}
}
