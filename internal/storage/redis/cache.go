package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"homematch/backend/internal/config"
	"homematch/backend/internal/storage"
)

// Cache 是 storage.Cache 的 Redis 实现。
//
// 键空间：
//   - otp:<email>        哈希 {code_hash, attempts}，TTL 为验证码有效期
//   - seen:<message-id>  去重标记，SETNX 写入
//   - rate:<key>         限流计数器，TTL 为限流窗口
type Cache struct {
	client *goredis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例并验证连通性。
func NewCache(cfg *config.RedisConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ctx: context.Background()}, nil
}

func otpKey(email string) string {
	return "otp:" + email
}

// SaveOTPCode 保存验证码哈希并重置尝试计数。
func (c *Cache) SaveOTPCode(email, codeHash string, ttl time.Duration) error {
	key := otpKey(email)
	pipe := c.client.TxPipeline()
	pipe.Del(c.ctx, key)
	pipe.HSet(c.ctx, key, "code_hash", codeHash, "attempts", 0)
	pipe.Expire(c.ctx, key, ttl)
	_, err := pipe.Exec(c.ctx)
	return err
}

// GetOTPCode 读取验证码记录，不存在或已过期返回 ErrOTPNotFound。
func (c *Cache) GetOTPCode(email string) (*storage.OTPRecord, error) {
	values, err := c.client.HGetAll(c.ctx, otpKey(email)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, storage.ErrOTPNotFound
	}

	record := &storage.OTPRecord{CodeHash: values["code_hash"]}
	fmt.Sscanf(values["attempts"], "%d", &record.Attempts)
	return record, nil
}

// IncrementOTPAttempts 累加校验失败次数并返回累加后的值。
func (c *Cache) IncrementOTPAttempts(email string) (int64, error) {
	key := otpKey(email)
	exists, err := c.client.Exists(c.ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, storage.ErrOTPNotFound
	}
	return c.client.HIncrBy(c.ctx, key, "attempts", 1).Result()
}

// DeleteOTPCode 删除验证码记录。
func (c *Cache) DeleteOTPCode(email string) error {
	return c.client.Del(c.ctx, otpKey(email)).Err()
}

// MarkEmailSeen 记录邮件服务商的 Message-ID，返回是否首次出现。
// 使用 SETNX 保证并发重投时只有一次判定为首次。
func (c *Cache) MarkEmailSeen(emailMessageID string, ttl time.Duration) (bool, error) {
	if emailMessageID == "" {
		return true, nil
	}
	return c.client.SetNX(c.ctx, "seen:"+emailMessageID, 1, ttl).Result()
}

// IncrementRateLimit 在窗口内累加计数并返回累加后的值。
// 首次累加时设置窗口过期时间。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	fullKey := "rate:" + key
	count, err := c.client.Incr(c.ctx, fullKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(c.ctx, fullKey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health 检查 Redis 连通性。
func (c *Cache) Health() error {
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	return nil
}
