package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/taoyao-code/jt808-gateway/internal/archive"
	cfgpkg "github.com/taoyao-code/jt808-gateway/internal/config"
	"github.com/taoyao-code/jt808-gateway/internal/metrics"
	pgstorage "github.com/taoyao-code/jt808-gateway/internal/storage/pg"
)

// NewArchiver 按 archive.sinks 组装归档器。
// 未启用时返回 nil；pg 目的地额外返回其熔断器（否则为 nil）。
func NewArchiver(
	cfg cfgpkg.ArchiveConfig,
	natsCfg cfgpkg.NATSConfig,
	pool *pgxpool.Pool,
	nc *nats.Conn,
	m *metrics.AppMetrics,
	logger *zap.Logger,
) (*archive.Archiver, *archive.Breaker, error) {
	if !cfg.Enabled {
		logger.Info("archive is disabled")
		return nil, nil, nil
	}

	var (
		sinks   []archive.Sink
		breaker *archive.Breaker
	)
	for _, name := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "file":
			sinks = append(sinks, archive.NewFileSink(cfg.StoragePath))
		case "pg":
			if pool == nil {
				return nil, nil, errors.New("archive sink pg: database is not enabled")
			}
			breaker = archive.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout)
			breaker.OnStateChange(func(from, to archive.BreakerState) {
				logger.Warn("archive breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			})
			sinks = append(sinks, archive.NewPGSink(pgstorage.NewArchiveRepo(pool), breaker))
		case "nats":
			if nc == nil {
				return nil, nil, errors.New("archive sink nats: nats is not enabled")
			}
			sinks = append(sinks, archive.NewNATSSink(nc, natsCfg.UplinkPrefix))
		default:
			return nil, nil, fmt.Errorf("archive: unknown sink %q", name)
		}
	}
	if len(sinks) == 0 {
		return nil, nil, errors.New("archive: no sinks configured")
	}

	a := archive.New(archive.Options{
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
		Logger:    logger.Named("archive"),
		Metrics:   m,
	}, sinks...)
	logger.Info("archive initialized",
		zap.Strings("sinks", cfg.Sinks),
		zap.String("storage_path", cfg.StoragePath))
	return a, breaker, nil
}
