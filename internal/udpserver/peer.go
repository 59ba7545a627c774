package udpserver

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Peer 一个 UDP 对端，实现会话传输接口
type Peer struct {
	s     *Server
	addr  net.Addr
	key   string
	inbox chan []byte

	lastSeen  atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(s *Server, addr net.Addr, key string) *Peer {
	p := &Peer{
		s:     s,
		addr:  addr,
		key:   key,
		inbox: make(chan []byte, inboxSize),
		done:  make(chan struct{}),
	}
	p.touch()
	return p
}

func (p *Peer) touch() { p.lastSeen.Store(time.Now().UnixNano()) }

// LastSeen 最近一次收发时间
func (p *Peer) LastSeen() time.Time { return time.Unix(0, p.lastSeen.Load()) }

func (p *Peer) RemoteAddr() net.Addr  { return p.addr }
func (p *Peer) Listener() string      { return p.s.cfg.Name }
func (p *Peer) Done() <-chan struct{} { return p.done }

// deliver 由读协程调用；收件箱满时丢弃
func (p *Peer) deliver(b []byte) {
	p.touch()
	select {
	case <-p.done:
	case p.inbox <- b:
	default:
		p.s.dropped.Add(1)
	}
}

// Write 发送一个数据报
func (p *Peer) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, ErrPeerClosed
	default:
	}
	n, err := p.s.pc.WriteTo(b, p.addr)
	if err == nil {
		p.touch()
	}
	return n, err
}

// Close 关闭对端，幂等
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.s.remove(p)
	})
	return nil
}

// ReadLoop 按到达顺序处理数据报，阻塞到对端关闭或 onData 返回错误
func (p *Peer) ReadLoop(onData func([]byte) error) error {
	for {
		select {
		case <-p.done:
			return nil
		case b := <-p.inbox:
			if err := onData(b); err != nil {
				return err
			}
		}
	}
}
