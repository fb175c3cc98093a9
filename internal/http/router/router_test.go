package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const testSecret = "router-secret"

type testConfig struct{ allowAll bool }

func (testConfig) GetHTTPAddr() string       { return ":0" }
func (c testConfig) GetCORSAllowAll() bool   { return c.allowAll }
func (testConfig) GetCORSOrigins() []string  { return []string{"https://app.example.test"} }
func (testConfig) GetAdminJWTSecret() string { return testSecret }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"pong": true}) })
}

type health struct{ err error }

func (h health) Ping(context.Context) error { return h.err }

func newEngine(h apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  h,
		Modules: []apphttp.Module{pingModule{}},
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(health{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newEngine(health{err: errors.New("db down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	engine := newEngine(nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	token, err := httpkit.IssueToken(testSecret, "ops", []string{httpkit.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected security headers")
	}
}

func TestCORSConfig(t *testing.T) {
	c := corsConfig(testConfig{})
	if c.AllowAllOrigins || len(c.AllowOrigins) != 1 {
		t.Fatalf("expected explicit origins, got %+v", c)
	}
	if !corsConfig(testConfig{allowAll: true}).AllowAllOrigins {
		t.Fatalf("expected allow-all")
	}
}
