package domain

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmailEmpty 邮箱为空
	ErrEmailEmpty = errors.New("email is empty")
	// ErrEmailInvalid 邮箱格式无效
	ErrEmailInvalid = errors.New("email format is invalid")
	// ErrEmailTooLong 邮箱超长
	ErrEmailTooLong = errors.New("email is too long")
)

// RFC 5321: 整个地址上限 254 字符。
const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail 校验邮箱地址格式。
//
// 只做入口级的形式校验，不做 MX 探测；比较场景（会话身份解析）
// 一律使用大小写不敏感比较，不在这里归一化。
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailEmpty
	}
	if len(email) > maxEmailLength {
		return ErrEmailTooLong
	}
	if !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}

// NormalizeEmail 返回小写、去除首尾空白的邮箱，用于存储键。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
