package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/jt808-gateway/internal/archive"
	"github.com/taoyao-code/jt808-gateway/internal/health"
	redisstorage "github.com/taoyao-code/jt808-gateway/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器，启动完成前 /health/ready 返回 503
func NewHealthAggregator(ready *health.Readiness) *health.Aggregator {
	return health.NewAggregator(ready)
}

// AddStorageCheckers 按已启用的依赖登记检查器
func AddStorageCheckers(agg *health.Aggregator, pool *pgxpool.Pool, redisClient *redisstorage.Client) {
	if pool != nil {
		agg.AddChecker(health.NewDatabaseChecker(pool))
	}
	if redisClient != nil {
		agg.AddChecker(health.NewRedisChecker(redisClient))
	}
}

// AddArchiveChecker 归档启用时登记检查器
func AddArchiveChecker(agg *health.Aggregator, a *archive.Archiver, b *archive.Breaker) {
	if a != nil {
		agg.AddChecker(health.NewArchiveChecker(a, b))
	}
}

// AddListenerChecker 登记监听端点连接数检查
func AddListenerChecker(agg *health.Aggregator, limits map[string]int, ls []Listener) {
	hl := make([]health.Listener, 0, len(ls))
	for _, l := range ls {
		hl = append(hl, l)
	}
	agg.AddChecker(health.NewListenerChecker(limits, hl...))
}
