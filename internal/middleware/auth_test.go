package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rainbowchenx/ai-agent/internal/model"
	"github.com/rainbowchenx/ai-agent/internal/repository"
	"github.com/rainbowchenx/ai-agent/internal/service"
	"github.com/rainbowchenx/ai-agent/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubBlacklist 内存版令牌黑名单
type stubBlacklist struct {
	revoked map[string]bool
}

func (b *stubBlacklist) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	b.revoked[tokenHash] = true
	return nil
}

func (b *stubBlacklist) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return b.revoked[tokenHash]
}

func newAuthTestRouter(t *testing.T) (*gin.Engine, *service.AuthService, *token.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	tokens := token.NewService(testSecret, time.Hour)
	authService := service.NewAuthService(
		repository.NewUserRepository(db),
		&stubBlacklist{revoked: make(map[string]bool)},
		tokens,
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(authService, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	return router, authService, tokens
}

func getProtected(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func responseMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	router, _, tokens := newAuthTestRouter(t)

	tk, err := tokens.Issue("42", time.Hour)
	require.NoError(t, err)

	w := getProtected(router, "Bearer "+tk.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
}

func TestAuthMiddlewareUniformFailureMessage(t *testing.T) {
	router, authService, tokens := newAuthTestRouter(t)
	ctx := context.Background()

	expired, err := tokens.Issue("42", -time.Minute)
	require.NoError(t, err)

	revoked, err := tokens.Issue("42", time.Hour)
	require.NoError(t, err)
	require.NoError(t, authService.Logout(ctx, revoked.AccessToken))

	wrongKey := token.NewService("another-secret-another-secret-xx", time.Hour)
	forged, err := wrongKey.Issue("42", time.Hour)
	require.NoError(t, err)

	// 过期、吊销、伪造、格式错误和缺失头的响应消息完全一致，
	// 不暴露具体是哪一步校验失败
	headers := []string{
		"Bearer " + expired.AccessToken,
		"Bearer " + revoked.AccessToken,
		"Bearer " + forged.AccessToken,
		"Bearer not-a-jwt",
		"Basic dXNlcjpwYXNz",
		"",
	}
	for _, header := range headers {
		w := getProtected(router, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Equal(t, "invalid authentication credentials", responseMessage(t, w), "header %q", header)
	}
}
