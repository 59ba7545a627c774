package archive

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常，允许写入
	BreakerOpen                         // 熔断，直接拒绝
	BreakerHalfOpen                     // 半开，放行少量试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝请求
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态请求过多
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Breaker 熔断器，保护下游存储不被持续失败拖慢归档队列
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int // 连续失败
	trials       int // 半开状态已放行
	trialOK      int
	openedAt     time.Time
	lastChangeAt time.Time
	trips        int64

	threshold   int
	timeout     time.Duration
	halfOpenMax int
	now         func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewBreaker 连续 threshold 次失败后熔断，timeout 后进入半开
func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{
		threshold:    threshold,
		timeout:      timeout,
		halfOpenMax:  4,
		now:          time.Now,
		lastChangeAt: time.Now(),
	}
}

// OnStateChange 状态变化回调，在锁外同步调用
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Call 执行 fn，受熔断器保护
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	var from, to BreakerState
	changed := false
	defer func() {
		cb := b.onStateChange
		b.mu.Unlock()
		if changed && cb != nil {
			cb(from, to)
		}
	}()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return ErrCircuitOpen
		}
		from, to, changed = b.state, BreakerHalfOpen, true
		b.transition(BreakerHalfOpen)
		b.trials, b.trialOK = 1, 0
		return nil
	default:
		if b.trials >= b.halfOpenMax {
			return ErrTooManyRequests
		}
		b.trials++
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	from := b.state
	if err != nil {
		b.failures++
		if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.threshold) {
			b.transition(BreakerOpen)
			b.openedAt = b.now()
			b.trips++
		}
	} else {
		b.failures = 0
		if b.state == BreakerHalfOpen {
			b.trialOK++
			if b.trialOK >= b.halfOpenMax/2 {
				b.transition(BreakerClosed)
			}
		}
	}
	to := b.state
	cb := b.onStateChange
	b.mu.Unlock()

	if from != to && cb != nil {
		cb(from, to)
	}
}

func (b *Breaker) transition(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	b.lastChangeAt = b.now()
	if s == BreakerClosed {
		b.failures, b.trials, b.trialOK = 0, 0, 0
	}
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats 熔断器统计信息
type BreakerStats struct {
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	Trips           int64     `json:"trips"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Stats 统计
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.state.String(),
		Failures:        b.failures,
		Trips:           b.trips,
		LastStateChange: b.lastChangeAt,
	}
}
