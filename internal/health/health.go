package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"homematch/backend/internal/storage"
)

// Checker 聚合存活与就绪探针。
//
// 存活探针只看进程自身（goroutine 数量），就绪探针
// 检查数据库与缓存连接，任一失败时摘除流量。
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger
}

// NewChecker 创建健康检查器。
func NewChecker(store storage.Store, cache storage.Cache, log *zap.Logger) *Checker {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	h.AddReadinessCheck("database", func() error {
		return store.Health()
	})
	h.AddReadinessCheck("cache", healthcheck.Timeout(func() error {
		return cache.Health()
	}, 2*time.Second))

	return &Checker{handler: h, log: log}
}

// AddReadinessCheck 注册额外的就绪检查（如数据库连接池探针）。
func (c *Checker) AddReadinessCheck(name string, check func() error) {
	c.handler.AddReadinessCheck(name, check)
}

// LiveEndpoint 存活探针处理函数。
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针处理函数。
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}
