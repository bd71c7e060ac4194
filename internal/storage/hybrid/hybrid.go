// Package hybrid 按配置装配持久存储与缓存后端的组合：
// 生产环境为关系型数据库 + Redis，开发环境可退化为纯内存。
package hybrid

import (
	"fmt"

	"go.uber.org/zap"

	"homematch/backend/internal/config"
	"homematch/backend/internal/storage"
	"homematch/backend/internal/storage/memory"
	"homematch/backend/internal/storage/postgres"
	"homematch/backend/internal/storage/redis"
)

// Open 根据配置创建存储与缓存实例。
//
// database.type 为空时使用内存存储；redis 连接失败时记录警告并
// 退化为内存缓存，业务继续可用（验证码与去重在重启后丢失）。
func Open(cfg *config.Config, log *zap.Logger) (storage.Store, storage.Cache, error) {
	var store storage.Store
	if cfg.Database.Type == "" {
		log.Warn("no database configured, using in-memory store")
		store = memory.NewStore()
	} else {
		s, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		log.Info("database store initialized",
			zap.String("type", cfg.Database.Type),
		)
		store = s
	}

	var cache storage.Cache
	if c, err := redis.NewCache(&cfg.Redis); err == nil {
		log.Info("redis cache initialized",
			zap.String("address", cfg.Redis.Address),
		)
		cache = c
	} else {
		log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		cache = memory.NewCache()
	}

	return store, cache, nil
}
