// Package token 提供访问令牌的签发和验证功能
// 令牌为自包含的 JWT（HS256 签名），携带主体标识（用户ID）
package token

import (
	"errors"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 定义错误类型
var (
	ErrInvalidToken   = errors.New("invalid token")   // 签名不匹配或令牌无效
	ErrExpiredToken   = errors.New("token has expired") // 令牌已过期
	ErrMalformedToken = errors.New("malformed token")  // 令牌格式错误或缺少必要字段
)

// jwtFormat 用于解码前的基本格式校验
// JWT 由 3 个 base64url 编码段组成，用点分隔
var jwtFormat = regexp.MustCompile(`^[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+$`)

// Claims 访问令牌的声明（Payload）
// 只使用标准声明：
//   - sub: 主体标识（用户ID）
//   - iat: 签发时间
//   - exp: 过期时间
//   - jti: 令牌唯一标识（预留给重放检测/吊销）
type Claims struct {
	jwt.RegisteredClaims
}

// Token 签发结果
type Token struct {
	AccessToken string    `json:"access_token"` // JWT 字符串
	TokenType   string    `json:"token_type"`   // 始终为 "bearer"
	ExpiresAt   time.Time `json:"expires_at"`   // 过期时间
}

// Service 提供令牌相关操作
// Verify 无副作用，可被任意多个请求并发调用
type Service struct {
	secret     []byte        // 签名密钥
	defaultTTL time.Duration // 默认有效期
}

// NewService 创建 Service 实例
// 参数:
//   - secret: 签名密钥，至少 32 个字符
//   - defaultTTL: 令牌默认有效期
func NewService(secret string, defaultTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
	}
}

// DefaultTTL 返回令牌默认有效期
func (s *Service) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Issue 为指定主体签发令牌
// 过期时间为 now+ttl，ttl <= 0 会签发一个已过期的令牌
// 参数:
//   - subject: 主体标识（用户ID 的字符串形式）
//   - ttl: 有效期
//
// 返回:
//   - *Token: 签发的令牌
//   - error: 签名失败（密钥配置错误，属于致命错误）
func (s *Service) Issue(subject string, ttl time.Duration) (*Token, error) {
	now := time.Now()
	expire := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expire),
			// jti 每次签发都不同，便于以后做吊销/重放追踪
			ID: uuid.New().String(),
		},
	}

	// 使用 HMAC SHA256 算法签名
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   expire,
	}, nil
}

// IssueDefault 使用默认有效期签发令牌
func (s *Service) IssueDefault(subject string) (*Token, error) {
	return s.Issue(subject, s.defaultTTL)
}

// Verify 验证令牌并返回主体标识
// 验证使用墙上时钟比较过期时间，不做时钟偏移补偿
// 参数:
//   - tokenString: JWT 字符串
//
// 返回:
//   - string: 主体标识
//   - error: ErrMalformedToken / ErrExpiredToken / ErrInvalidToken
func (s *Service) Verify(tokenString string) (string, error) {
	// 解码前先做基本格式校验
	if tokenString == "" || !jwtFormat.MatchString(tokenString) {
		return "", ErrMalformedToken
	}

	t, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// 验证签名算法，防止算法替换攻击
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrMalformedToken
		default:
			return "", ErrInvalidToken
		}
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return "", ErrInvalidToken
	}

	// 缺少主体标识视为格式错误
	if claims.Subject == "" {
		return "", ErrMalformedToken
	}

	return claims.Subject, nil
}

// VerifyWithClaims 验证令牌并返回完整声明
// 供需要过期时间等信息的调用方使用（如登出时计算黑名单 TTL）
func (s *Service) VerifyWithClaims(tokenString string) (*Claims, error) {
	if tokenString == "" || !jwtFormat.MatchString(tokenString) {
		return nil, ErrMalformedToken
	}

	t, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMalformedToken
	}

	return claims, nil
}
