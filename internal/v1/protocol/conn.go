package protocol

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
	"go.uber.org/zap"
)

// sendBufferSize bounds the outbound queue per connection; while a slow
// reader's queue is full, newly written frames are dropped rather than
// stalling the room's broadcast loop (same tradeoff as the teacher's
// Client.send channel).
const sendBufferSize = 64

const writeWait = 10 * time.Second

// netConn adapts a net.Conn into watcher.Conn: line-delimited JSON framing
// with \r\n terminators (spec.md §4.1), an in-band TLS upgrade hook, and a
// buffered, non-blocking write path.
type netConn struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader

	send      chan []byte
	pumpDone  chan struct{}
	closeOnce sync.Once
	closed    bool
}

func newNetConn(conn net.Conn) *netConn {
	return &netConn{
		conn:     conn,
		rd:       bufio.NewReader(conn),
		send:     make(chan []byte, sendBufferSize),
		pumpDone: make(chan struct{}),
	}
}

// readLine blocks for the next \r\n (or \n) terminated line, trimmed of
// its terminator.
func (c *netConn) readLine() ([]byte, error) {
	line, err := c.rd.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// WriteFrame satisfies watcher.Conn: encode tag/payload and enqueue it on
// the write pump, dropping it (with a log) if the queue is full.
func (c *netConn) WriteFrame(frame types.OutFrame) error {
	data, err := json.Marshal(map[string]interface{}(frame))
	if err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	data = append(data, '\r', '\n')

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("protocol: connection closed")
	}

	select {
	case c.send <- data:
		return nil
	default:
		logging.Warn(context.Background(), "protocol: send queue full, dropping frame")
		return nil
	}
}

// Close force-closes the underlying socket and stops the write pump. It
// waits for the write pump to drain whatever was already queued (such as
// a final Error frame) before closing the socket, so a teardown can never
// race its own last frame. It is safe to call more than once.
func (c *netConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		<-c.pumpDone
		err = c.conn.Close()
	})
	return err
}

// writePump drains the send queue to the socket until it's closed.
func (c *netConn) writePump() {
	defer close(c.pumpDone)
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := c.conn.Write(data); err != nil {
			logging.Warn(context.Background(), "protocol: write failed", zap.Error(err))
			return
		}
	}
}

// startTLS performs the in-band server-side TLS handshake on the
// underlying connection, replacing both the raw conn and its buffered
// reader (spec.md §4.2). Only valid while Unauthenticated.
func (c *netConn) startTLS(cfg *tls.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tlsConn := tls.Server(c.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	c.conn = tlsConn
	c.rd = bufio.NewReader(tlsConn)
	return nil
}

// remoteIP returns the dialing peer's address without its port, for the
// wire proxy's user_ip injection and for per-IP admission limiting.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
