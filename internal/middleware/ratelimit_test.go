package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/rainbowchenx/ai-agent/internal/config"
)

// fakeCounter 内存版固定窗口计数器
type fakeCounter struct {
	counts map[string]int
	limits map[string]int
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		counts: make(map[string]int),
		limits: make(map[string]int),
	}
}

func (f *fakeCounter) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.counts[key]++
	f.limits[key] = limit
	return f.counts[key] <= limit, nil
}

func newRateLimitedRouter(counter RequestCounter, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(counter, cfg, zap.NewNop()))
	router.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0})
	})
	router.GET("/api/v1/auth/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0})
	})
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitExceeded(t *testing.T) {
	counter := newFakeCounter()
	router := newRateLimitedRouter(counter, config.RateLimitConfig{
		Enabled: true,
		Limit:   2,
		Window:  time.Minute,
	})

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
}

func TestRateLimitPerEndpointRule(t *testing.T) {
	counter := newFakeCounter()
	router := newRateLimitedRouter(counter, config.RateLimitConfig{
		Enabled: true,
		Limit:   100,
		Window:  time.Minute,
		Endpoints: map[string]config.RateLimitRule{
			"/api/v1/auth/login": {Limit: 1, Window: time.Minute},
		},
	})

	// 登录路由用覆盖规则，其余路由用默认规则
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/v1/auth/sessions").Code)

	assert.Equal(t, 1, counter.limits["192.0.2.1:/api/v1/auth/login"])
	assert.Equal(t, 100, counter.limits["192.0.2.1:/api/v1/auth/sessions"])
}

func TestRateLimitDisabled(t *testing.T) {
	counter := newFakeCounter()
	router := newRateLimitedRouter(counter, config.RateLimitConfig{
		Enabled: false,
		Limit:   1,
		Window:  time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	}
	assert.Empty(t, counter.counts, "disabled limiter never touches the counter")
}

func TestRateLimitFailOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("redis unavailable")
	router := newRateLimitedRouter(counter, config.RateLimitConfig{
		Enabled: true,
		Limit:   1,
		Window:  time.Minute,
	})

	// 计数器故障时放行请求
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/v1/auth/login").Code)
}
