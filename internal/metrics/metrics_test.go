package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"presensi/internal/apperr"
	"presensi/internal/ratelimit"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestDecisionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuth("")
	c.RecordAuth("")
	c.RecordAuth(apperr.TamperedRole)
	c.RecordRateLimit(ratelimit.Decision{Outcome: ratelimit.Denied})
	c.RecordScanAccepted()
	c.RecordScanRejected(apperr.DuplicateStatus)

	if v := counterValue(t, reg, "presensi_auth_decisions_total", map[string]string{"result": "ALLOWED"}); v != 2 {
		t.Errorf("allowed = %v, want 2", v)
	}
	if v := counterValue(t, reg, "presensi_auth_decisions_total", map[string]string{"result": "TAMPERED_ROLE"}); v != 1 {
		t.Errorf("tampered = %v, want 1", v)
	}
	if v := counterValue(t, reg, "presensi_rate_limit_decisions_total", map[string]string{"decision": ratelimit.Denied.String()}); v != 1 {
		t.Errorf("denied = %v, want 1", v)
	}
	if v := counterValue(t, reg, "presensi_scans_total", map[string]string{"result": "DUPLICATE_STATUS"}); v != 1 {
		t.Errorf("duplicate scans = %v, want 1", v)
	}
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := gin.New()
	r.Use(c.GinMiddleware())
	r.GET("/v1/users/:id", func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/S1", nil))

	if v := counterValue(t, reg, "presensi_http_requests_total", map[string]string{"route": "/v1/users/:id", "status": "204"}); v != 1 {
		t.Fatalf("requests = %v, want 1", v)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "presensi_http_request_duration_seconds") {
		t.Fatal("duration histogram missing from scrape output")
	}
}
