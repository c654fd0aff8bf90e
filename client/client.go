// Package client 提供服务端 HTTP API 的 Go 客户端，
// 以及浏览器端会话镜像的本地缓存实现。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// defaultTimeout HTTP 请求默认超时
const defaultTimeout = 30 * time.Second

// Client API 客户端，持有当前登录令牌
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string

	// onUnauthorized 收到 401 时回调（用于清除本地令牌并跳转登录）
	onUnauthorized func()
}

// Option 客户端配置选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUnauthorizedHandler 设置 401 回调
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// New 创建 API 客户端
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken 设置当前令牌（登录成功后调用）
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token 返回当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// apiResponse 服务端统一响应格式
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError 服务端返回的业务错误
type APIError struct {
	Status  int    // HTTP 状态码
	Code    int    // 业务错误码
	Message string // 错误信息
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

// IsNotFound 判断是否为资源不存在错误
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Token 令牌响应
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Account 用户摘要
type Account struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// RegisterResult 注册响应
type RegisterResult struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Token *Token `json:"token"`
}

// Session 会话摘要
type Session struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Message 消息视图
type Message struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Register 注册新用户，成功后自动保存令牌
func (c *Client) Register(ctx context.Context, email, password string) (*RegisterResult, error) {
	body := map[string]string{"email": email, "password": password}
	data, err := c.postJSON(ctx, "/api/v1/auth/register", body)
	if err != nil {
		return nil, err
	}

	var result RegisterResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	if result.Token != nil {
		c.SetToken(result.Token.AccessToken)
	}
	return &result, nil
}

// Login 登录（OAuth2 密码模式表单），成功后自动保存令牌
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	form.Set("grant_type", "password")

	data, err := c.postForm(ctx, "/api/v1/auth/login", form)
	if err != nil {
		return nil, err
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	c.SetToken(tok.AccessToken)
	return &tok, nil
}

// Verify 验证当前令牌，返回对应的用户信息
func (c *Client) Verify(ctx context.Context) (*Account, error) {
	data, err := c.get(ctx, "/api/v1/auth/verify")
	if err != nil {
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &account, nil
}

// Logout 登出并清除本地令牌
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.postJSON(ctx, "/api/v1/auth/logout", nil)
	// 无论服务端是否成功，本地令牌都清除
	c.SetToken("")
	return err
}

// CreateSession 创建新会话
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	data, err := c.postJSON(ctx, "/api/v1/auth/session", nil)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &session, nil
}

// ListSessions 获取当前用户的会话列表（按创建时间倒序）
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	data, err := c.get(ctx, "/api/v1/auth/sessions")
	if err != nil {
		return nil, err
	}

	var result struct {
		Sessions []Session `json:"sessions"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode sessions response: %w", err)
	}
	return result.Sessions, nil
}

// RenameSession 重命名会话
func (c *Client) RenameSession(ctx context.Context, sessionID, name string) (*Session, error) {
	body := map[string]string{"name": name}
	data, err := c.do(ctx, http.MethodPatch, "/api/v1/auth/session/"+sessionID+"/name", "application/json", jsonBody(body))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode rename response: %w", err)
	}
	return &session, nil
}

// DeleteSession 删除会话及其全部消息
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/auth/session/"+sessionID, "", nil)
	return err
}

// GetMessages 获取会话消息（按时间正序）
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	data, err := c.get(ctx, "/api/v1/session/"+sessionID+"/messages")
	if err != nil {
		return nil, err
	}

	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return result.Messages, nil
}

// ClearMessages 清空会话消息（保留会话本身）
func (c *Client) ClearMessages(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/session/"+sessionID+"/messages", "", nil)
	return err
}

// Chat 发送消息并等待完整回复
func (c *Client) Chat(ctx context.Context, sessionID, content string) (*Message, error) {
	body := map[string]string{"session_id": sessionID, "content": content}
	data, err := c.postJSON(ctx, "/api/v1/chat", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Message Message `json:"message"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &result.Message, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, "application/json", jsonBody(body))
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func jsonBody(body interface{}) io.Reader {
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return bytes.NewReader(data)
}

// do 发送请求并解析统一响应格式
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 401 视为令牌失效，清除本地令牌并触发回调
	if resp.StatusCode == http.StatusUnauthorized {
		c.SetToken("")
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if apiResp.Code != 0 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Code:    apiResp.Code,
			Message: apiResp.Message,
		}
	}

	return apiResp.Data, nil
}
