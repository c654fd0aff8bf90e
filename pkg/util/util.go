// Package util 提供通用工具函数
package util

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// emailPattern 邮箱格式校验
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// HashPassword 使用 bcrypt 哈希密码
// bcrypt 是一种专门为密码哈希设计的算法，自动添加盐值
// 参数:
//   - password: 明文密码
//
// 返回:
//   - string: 密码哈希值
//   - error: 哈希错误
func HashPassword(password string) (string, error) {
	// bcrypt.DefaultCost 是默认的计算成本（10）
	// 成本越高，计算越慢，安全性越高
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 验证密码是否匹配
// 参数:
//   - password: 用户输入的明文密码
//   - hash: 数据库中存储的哈希值
//
// 返回:
//   - bool: 是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NewSessionID 生成会话 ID
// 使用标准 UUID v4 格式（含连字符），作为会话的主键
// 返回:
//   - string: UUID 字符串，如 "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
func NewSessionID() string {
	return uuid.New().String()
}

// NormalizeEmail 规范化邮箱地址
// 去掉首尾空白并转为小写，保证同一邮箱只能注册一次
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail 校验邮箱格式
// 参数:
//   - email: 邮箱地址（应已规范化）
//
// 返回:
//   - bool: 格式是否合法
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePasswordStrength 校验密码强度
// 要求至少 8 位，且包含大写字母、小写字母、数字和特殊字符
// 参数:
//   - password: 明文密码
//
// 返回:
//   - string: 不满足要求时的提示信息，满足时为空字符串
func ValidatePasswordStrength(password string) string {
	if len(password) < 8 {
		return "password must be at least 8 characters long"
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	const specials = `!@#$%^&*(),.?":{}|<>`
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specials, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return "password must contain at least one uppercase letter"
	case !hasLower:
		return "password must contain at least one lowercase letter"
	case !hasDigit:
		return "password must contain at least one number"
	case !hasSpecial:
		return "password must contain at least one special character"
	}
	return ""
}

// SanitizeString 清理用户输入的文本
// 去掉首尾空白并移除 NUL 等控制字符（保留换行和制表符）
// 参数:
//   - s: 原字符串
//
// 返回:
//   - string: 清理后的字符串
func SanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// TruncateString 截断字符串到指定长度
// 如果字符串超过指定长度，截断并添加 "..."
// 参数:
//   - s: 原字符串
//   - maxLen: 最大长度
//
// 返回:
//   - string: 截断后的字符串
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
