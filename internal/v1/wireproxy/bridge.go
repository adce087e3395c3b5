package wireproxy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/tlscontext"
	"go.uber.org/zap"
)

// bridge pairs one client connection with its upstream dial and forwards
// frames both ways, intercepting just enough of the client->upstream
// stream to terminate TLS locally and stamp user_ip onto Hello. Grounded
// on SyncplayProxyClientProtocol.messageRecieved in
// original_source/syncplay/protocols.py, which performs the identical pop
// TLS / inject user_ip dance before relaying upstream.
type bridge struct {
	mu       sync.Mutex
	client   net.Conn
	upstream net.Conn
	rd       *bufio.Reader
	tls      *tlscontext.Context
	userIP   string

	helloSeen bool
}

func newBridge(client, upstream net.Conn, tlsCtx *tlscontext.Context, userIP string) *bridge {
	return &bridge{
		client:   client,
		upstream: upstream,
		rd:       bufio.NewReader(client),
		tls:      tlsCtx,
		userIP:   userIP,
	}
}

func (b *bridge) run(ctx context.Context) {
	defer b.client.Close()
	defer b.upstream.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(b.clientWriter(), b.upstream)
	}()

	b.pumpClientToUpstream(ctx)
	<-done
}

// clientWriter serializes writes to the client connection so a live TLS
// upgrade mid-stream never races the upstream copy goroutine.
func (b *bridge) clientWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.client.Write(p)
	})
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// pumpClientToUpstream reads line-delimited frames from the client and
// passes each to handleLine; lines that handleLine does not handle (those
// that are not a JSON object) are forwarded verbatim.
func (b *bridge) pumpClientToUpstream(ctx context.Context) {
	for {
		line, err := b.rd.ReadBytes('\n')
		if len(line) > 0 {
			if handled, stop := b.handleLine(ctx, bytes.TrimRight(line, "\r\n")); !handled {
				if _, werr := b.upstream.Write(line); werr != nil {
					return
				}
			} else if stop {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// handleLine decodes one client frame. It returns handled=true when it
// dealt with the line itself: a TLS envelope is answered locally, and any
// other JSON object is re-encoded (with user_ip stamped onto the first
// Hello) and written upstream. It returns handled=false for a line that is
// not a JSON object, and stop=true when the connection should end.
func (b *bridge) handleLine(ctx context.Context, line []byte) (handled bool, stop bool) {
	if len(line) == 0 {
		return true, false
	}

	var msgs map[string]json.RawMessage
	if err := json.Unmarshal(line, &msgs); err != nil {
		return false, false
	}

	if raw, ok := msgs["TLS"]; ok {
		delete(msgs, "TLS")
		if b.handleTLS(ctx, raw) {
			return true, false
		}
		return true, true
	}

	if raw, ok := msgs["Hello"]; ok {
		var hello map[string]json.RawMessage
		if err := json.Unmarshal(raw, &hello); err == nil {
			if !b.helloSeen {
				b.helloSeen = true
				ipJSON, _ := json.Marshal(b.userIP)
				hello["user_ip"] = ipJSON
				if patched, err := json.Marshal(hello); err == nil {
					msgs["Hello"] = patched
				}
			}
		}
	}

	if len(msgs) == 0 {
		return true, false
	}

	out, err := json.Marshal(msgs)
	if err != nil {
		return false, false
	}
	out = append(out, '\r', '\n')
	if _, err := b.upstream.Write(out); err != nil {
		return true, true
	}
	return true, false
}

// handleTLS answers a client's startTLS request locally, matching
// protocol.Session.handleTLS's wire behaviour, and on acceptance performs
// the server-side handshake over the existing client socket. It never
// forwards the TLS envelope upstream; upstream never needs to know a
// local termination happened.
func (b *bridge) handleTLS(ctx context.Context, payload json.RawMessage) bool {
	var body struct {
		StartTLS string `json:"startTLS"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.StartTLS != "send" {
		return true
	}

	if b.tls != nil {
		b.tls.CheckAndReload(ctx)
	}
	accepts := b.tls != nil && b.tls.Accepts()
	reply := "false"
	if accepts {
		reply = "true"
	}
	frame, _ := json.Marshal(map[string]interface{}{"startTLS": reply})
	frame = append(frame, '\r', '\n')

	b.mu.Lock()
	_, werr := b.client.Write(frame)
	b.mu.Unlock()
	if werr != nil {
		return false
	}
	if !accepts {
		return true
	}

	tlsConn := tls.Server(b.client, b.tls.Config())
	if err := tlsConn.Handshake(); err != nil {
		logging.Warn(ctx, "wireproxy: TLS handshake failed", zap.Error(err))
		return false
	}

	b.mu.Lock()
	b.client = tlsConn
	b.rd = bufio.NewReader(tlsConn)
	b.mu.Unlock()
	return true
}
