package tcpserver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited 新连接速率超过上限
	ErrRateLimited = errors.New("accept rate exceeded")
	// ErrTooManyConns 并发连接数已满
	ErrTooManyConns = errors.New("connection limit exceeded")
)

// Admission 新连接准入：令牌桶限速 + 信号量限并发。零值字段表示不限制
type Admission struct {
	limiter *rate.Limiter
	sem     chan struct{}
	wait    time.Duration

	active   atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewAdmission ratePerSec<=0 不限速；maxConn<=0 不限并发。
// wait 为并发已满时等待空位的时长
func NewAdmission(ratePerSec float64, burst, maxConn int, wait time.Duration) *Admission {
	a := &Admission{wait: wait}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = int(ratePerSec * 2)
		}
		a.limiter = rate.NewLimiter(rate.Limit(ratePerSec), max(burst, 1))
	}
	if maxConn > 0 {
		a.sem = make(chan struct{}, maxConn)
	}
	return a
}

// Admit 获取一个连接许可，成功时返回释放函数（幂等）
func (a *Admission) Admit(ctx context.Context) (func(), error) {
	if a.limiter != nil && !a.limiter.Allow() {
		a.rejected.Add(1)
		return nil, ErrRateLimited
	}
	if a.sem != nil {
		if err := a.acquire(ctx); err != nil {
			a.rejected.Add(1)
			return nil, err
		}
	}
	a.allowed.Add(1)
	a.active.Add(1)

	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		a.active.Add(-1)
		if a.sem != nil {
			<-a.sem
		}
	}, nil
}

func (a *Admission) acquire(ctx context.Context) error {
	select {
	case a.sem <- struct{}{}:
		return nil
	default:
	}
	if a.wait <= 0 {
		return ErrTooManyConns
	}
	ctx, cancel := context.WithTimeout(ctx, a.wait)
	defer cancel()
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrTooManyConns
	}
}

// AdmissionStats 准入统计
type AdmissionStats struct {
	MaxConnections    int   `json:"max_connections"`
	ActiveConnections int64 `json:"active_connections"`
	AllowedTotal      int64 `json:"allowed_total"`
	RejectedTotal     int64 `json:"rejected_total"`
}

// Stats 返回统计信息
func (a *Admission) Stats() AdmissionStats {
	return AdmissionStats{
		MaxConnections:    cap(a.sem),
		ActiveConnections: a.active.Load(),
		AllowedTotal:      a.allowed.Load(),
		RejectedTotal:     a.rejected.Load(),
	}
}
