package archive

import (
	"context"

	"github.com/taoyao-code/jt808-gateway/internal/storage/pg"
)

// ArchiveStore 由 storage/pg.ArchiveRepo 实现
type ArchiveStore interface {
	Insert(ctx context.Context, row pg.ArchiveRow) error
}

// PGSink 写入 PostgreSQL，连续失败时熔断
type PGSink struct {
	store   ArchiveStore
	breaker *Breaker
}

// NewPGSink 创建数据库归档；breaker 为 nil 时不熔断
func NewPGSink(store ArchiveStore, breaker *Breaker) *PGSink {
	return &PGSink{store: store, breaker: breaker}
}

func (p *PGSink) Name() string { return "pg" }

// Breaker 熔断器，可能为 nil
func (p *PGSink) Breaker() *Breaker { return p.breaker }

// Write 写入一条记录
func (p *PGSink) Write(ctx context.Context, rec Record) error {
	row := pg.ArchiveRow{
		DeviceID:   rec.DeviceID,
		MsgID:      rec.MsgID,
		Payload:    rec.Payload,
		ReceivedAt: rec.Time,
	}
	if p.breaker == nil {
		return p.store.Insert(ctx, row)
	}
	return p.breaker.Call(func() error { return p.store.Insert(ctx, row) })
}
