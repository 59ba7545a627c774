package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchiveRow 一条归档报文
type ArchiveRow struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	MsgID      uint32    `json:"msg_id"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// ArchiveRepo packet_archive 表
type ArchiveRepo struct {
	Pool *pgxpool.Pool
}

// NewArchiveRepo 创建仓储
func NewArchiveRepo(pool *pgxpool.Pool) *ArchiveRepo {
	return &ArchiveRepo{Pool: pool}
}

// Insert 插入一条归档
func (r *ArchiveRepo) Insert(ctx context.Context, row ArchiveRow) error {
	const q = `INSERT INTO packet_archive (device_id, msg_id, payload, received_at)
               VALUES ($1,$2,$3,$4)`
	_, err := r.Pool.Exec(ctx, q, row.DeviceID, int64(row.MsgID), row.Payload, row.ReceivedAt)
	return err
}

// InsertBatch 使用 COPY 批量写入
func (r *ArchiveRepo) InsertBatch(ctx context.Context, rows []ArchiveRow) (int64, error) {
	return r.Pool.CopyFrom(ctx,
		pgx.Identifier{"packet_archive"},
		[]string{"device_id", "msg_id", "payload", "received_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].DeviceID, int64(rows[i].MsgID), rows[i].Payload, rows[i].ReceivedAt}, nil
		}),
	)
}

// Recent 按时间倒序列出设备最近的归档
func (r *ArchiveRepo) Recent(ctx context.Context, deviceID string, limit int) ([]ArchiveRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	const q = `SELECT id, device_id, msg_id, payload, received_at
               FROM packet_archive WHERE device_id=$1
               ORDER BY received_at DESC, id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchiveRow
	for rows.Next() {
		var (
			row   ArchiveRow
			msgID int64
		)
		if err := rows.Scan(&row.ID, &row.DeviceID, &msgID, &row.Payload, &row.ReceivedAt); err != nil {
			return nil, err
		}
		row.MsgID = uint32(msgID)
		out = append(out, row)
	}
	return out, rows.Err()
}
