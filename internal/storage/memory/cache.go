package memory

import (
	"sync"
	"time"

	"homematch/backend/internal/storage"
)

// Cache 是 storage.Cache 的内存实现，供无 Redis 的开发环境使用。
// 过期条目在访问时惰性清理。
type Cache struct {
	mu     sync.Mutex
	otps   map[string]*otpEntry
	seen   map[string]time.Time // Message-ID -> 过期时间
	limits map[string]*limitEntry
}

type otpEntry struct {
	record    storage.OTPRecord
	expiresAt time.Time
}

type limitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewCache 创建内存缓存实例。
func NewCache() *Cache {
	return &Cache{
		otps:   make(map[string]*otpEntry),
		seen:   make(map[string]time.Time),
		limits: make(map[string]*limitEntry),
	}
}

// SaveOTPCode 保存验证码哈希并重置尝试计数。
func (c *Cache) SaveOTPCode(email, codeHash string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.otps[email] = &otpEntry{
		record:    storage.OTPRecord{CodeHash: codeHash},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// GetOTPCode 读取验证码记录，不存在或已过期返回 ErrOTPNotFound。
func (c *Cache) GetOTPCode(email string) (*storage.OTPRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.otps[email]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.otps, email)
		return nil, storage.ErrOTPNotFound
	}
	record := entry.record
	return &record, nil
}

// IncrementOTPAttempts 累加校验失败次数并返回累加后的值。
func (c *Cache) IncrementOTPAttempts(email string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.otps[email]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.otps, email)
		return 0, storage.ErrOTPNotFound
	}
	entry.record.Attempts++
	return entry.record.Attempts, nil
}

// DeleteOTPCode 删除验证码记录。
func (c *Cache) DeleteOTPCode(email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.otps, email)
	return nil
}

// MarkEmailSeen 记录邮件 Message-ID，返回是否首次出现。
func (c *Cache) MarkEmailSeen(emailMessageID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if expires, ok := c.seen[emailMessageID]; ok && now.Before(expires) {
		return false, nil
	}
	c.seen[emailMessageID] = now.Add(ttl)
	return true, nil
}

// IncrementRateLimit 在滑动窗口内累加计数并返回累加后的值。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.limits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &limitEntry{expiresAt: now.Add(window)}
		c.limits[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Close 关闭缓存（内存实现为空操作）。
func (c *Cache) Close() error { return nil }

// Health 健康检查（内存实现恒为健康）。
func (c *Cache) Health() error { return nil }
