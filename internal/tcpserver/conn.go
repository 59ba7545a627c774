package tcpserver

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ErrIdle 连接空闲超时
var ErrIdle = errors.New("connection idle")

// Conn 已接受的 TCP 连接，Close 幂等
type Conn struct {
	net.Conn
	listener string

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(c net.Conn, listener string) *Conn {
	return &Conn{Conn: c, listener: listener, done: make(chan struct{})}
}

// Listener 所属监听端点
func (c *Conn) Listener() string { return c.listener }

// Done 连接关闭后关闭
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close 关闭底层连接
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		close(c.done)
	})
	return c.closeErr
}

// ReadLoop 读循环，阻塞到连接结束。
// 每次读取前设置读超时；超时后调用 onTimeout，返回 true 则继续读。
// onData 返回错误时结束循环并返回该错误；对端关闭返回 nil。
func (c *Conn) ReadLoop(buf []byte, timeout time.Duration, onData func([]byte) error, onTimeout func() bool) error {
	for {
		if timeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := c.Read(buf)
		if n > 0 {
			if derr := onData(buf[:n]); derr != nil {
				return derr
			}
		}
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if onTimeout != nil && onTimeout() {
				continue
			}
			return ErrIdle
		}
		select {
		case <-c.done:
			return nil
		default:
		}
		if isClosedErr(err) {
			return nil
		}
		return err
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
