// Package wireproxy implements the optional pass-through front-end of
// spec.md §4.9: accept client connections (TCP or WebSocket), open one
// upstream TCP connection per client to a configured core server, and
// forward JSON frames both ways, with two local interceptions: injecting
// user_ip into the client's first Hello, and handling the TLS envelope
// locally instead of forwarding it upstream.
//
// Grounded on original_source/syncplay/protocols.py's
// SyncplayTCPServerProtocol / SyncplayProxyClientProtocol, translated from
// Twisted's factory/protocol split into a goroutine pair per connection
// (the same shape the core protocol package uses for its own sessions).
package wireproxy

import (
	"context"
	"net"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/ratelimit"
	"github.com/weebpoly/syncplay-go/internal/v1/tlscontext"
	"go.uber.org/zap"
)

const upstreamDialTimeout = 5 * time.Second

// Proxy fronts an upstream core server, optionally terminating TLS itself
// before forwarding to an upstream that need not know about it.
type Proxy struct {
	upstream string
	limiter  *ratelimit.ConnectionLimiter
	tls      *tlscontext.Context
}

// New returns a Proxy forwarding to upstream ("host:port"), admitting new
// dials through limiter and terminating TLS via tlsCtx (nil or disabled
// tlsCtx means TLS is never offered locally).
func New(upstream string, limiter *ratelimit.ConnectionLimiter, tlsCtx *tlscontext.Context) *Proxy {
	return &Proxy{upstream: upstream, limiter: limiter, tls: tlsCtx}
}

// ListenAndServeTCP accepts plain TCP clients on port and bridges each to
// the upstream core until ctx is cancelled.
func (p *Proxy) ListenAndServeTCP(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", addrFor(port))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logging.Info(ctx, "wireproxy: listening (tcp)", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logging.Warn(ctx, "wireproxy: accept failed", zap.Error(err))
				continue
			}
		}
		go p.handleTCP(ctx, conn)
	}
}

func (p *Proxy) handleTCP(ctx context.Context, client net.Conn) {
	ip := hostOf(client.RemoteAddr())
	if p.limiter != nil && !p.limiter.Allow(ctx, ip) {
		logging.Warn(ctx, "wireproxy: rejecting dial, rate limited", zap.String("ip", ip))
		client.Close()
		return
	}

	upstream, err := net.DialTimeout("tcp", p.upstream, upstreamDialTimeout)
	if err != nil {
		logging.Warn(ctx, "wireproxy: upstream dial failed", zap.String("upstream", p.upstream), zap.Error(err))
		client.Close()
		return
	}

	bridge := newBridge(client, upstream, p.tls, ip)
	bridge.run(ctx)
}

func addrFor(port int) string {
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
