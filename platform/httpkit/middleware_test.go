package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	admin := engine.Group("/admin", AuthRequired(testSecret), RequireRole(RoleAdmin))
	admin.GET("/me", func(c *gin.Context) {
		id := MustGetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"subject": id.Subject()})
	})
	engine.GET("/fail", func(c *gin.Context) {
		HandleError(c, apperr.Conflict("busy"))
	})
	engine.GET("/boom", func(c *gin.Context) {
		HandleError(c, errors.New("pool exhausted"))
	})
	return engine
}

func TestAuthRequired(t *testing.T) {
	engine := newTestEngine()
	admin, err := IssueToken(testSecret, "ops@bizdeedz.test", []string{RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	viewer, _ := IssueToken(testSecret, "viewer", []string{"viewer"}, time.Hour)
	forged, _ := IssueToken("other-secret", "ops", []string{RoleAdmin}, time.Hour)
	expired, _ := IssueToken(testSecret, "ops", []string{RoleAdmin}, -time.Minute)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"admin", "Bearer " + admin, "", http.StatusOK},
		{"query token", "", "?token=" + admin, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"forged", "Bearer " + forged, "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, "", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/me"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestEngine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"error":"internal error"`) {
		t.Fatalf("expected masked 500, got %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "pool exhausted") {
		t.Fatalf("untyped error text leaked: %s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, logger.Discard())
	engine.POST("/intake", limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/intake", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		engine.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		last = rec
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "1000" {
		t.Fatalf("expected Retry-After 1000, got %q", got)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1, nil)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.reserve("203.0.113.1")
	limiter.reserve("203.0.113.2")
	if limiter.Visitors() != 2 {
		t.Fatalf("expected 2 visitors, got %d", limiter.Visitors())
	}

	now = now.Add(limiterIdleTTL + time.Second)
	limiter.reserve("203.0.113.3")
	if limiter.Visitors() != 1 {
		t.Fatalf("expected idle visitors to be evicted, got %d", limiter.Visitors())
	}
}

func TestAuthRejectsEmptySecret(t *testing.T) {
	if _, err := IssueToken("", "ops", []string{RoleAdmin}, time.Hour); err == nil {
		t.Fatalf("expected an error for an empty signing secret")
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin", AuthRequired(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	token, _ := IssueToken(testSecret, "ops", []string{RoleAdmin}, time.Hour)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a configured secret, got %d", rec.Code)
	}
}
