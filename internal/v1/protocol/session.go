package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/weebpoly/syncplay-go/internal/v1/config"
	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/metrics"
	"github.com/weebpoly/syncplay-go/internal/v1/roommanager"
	"github.com/weebpoly/syncplay-go/internal/v1/watcher"
	"go.uber.org/zap"
)

// TLSProvider is the surface Session needs from the TLS context: whether a
// certificate is configured, and the config to hand to tls.Server. Satisfied
// by *tlscontext.Context.
type TLSProvider interface {
	Accepts() bool
	Config() *tls.Config
	CheckAndReload(ctx context.Context)
}

// Session drives one accepted connection through the state machine of
// spec.md §4.2: Unauthenticated -> TLSNegotiating? -> Authenticated ->
// Closed. It owns the connection's netConn and, once Hello succeeds, its
// Watcher.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn     *netConn
	manager  *roommanager.Manager
	cfg      *config.Config
	tls      TLSProvider
	motd     string
	remoteIP string

	watcher       *watcher.Watcher
	authenticated bool
}

// Serve drives rawConn through its full session lifetime: framing,
// authentication, dispatch, and teardown. It blocks until the connection
// closes, so callers run it on its own goroutine per accepted connection
// (spec.md §5's one-reactor-per-connection realization).
func Serve(ctx context.Context, rawConn net.Conn, manager *roommanager.Manager, cfg *config.Config, tlsCtx TLSProvider, motdTemplate string) {
	s := newSession(ctx, newNetConn(rawConn), manager, cfg, tlsCtx, motdTemplate)
	s.Run()
}

func newSession(ctx context.Context, conn *netConn, manager *roommanager.Manager, cfg *config.Config, tlsCtx TLSProvider, motdTemplate string) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		ctx:      sctx,
		cancel:   cancel,
		conn:     conn,
		manager:  manager,
		cfg:      cfg,
		tls:      tlsCtx,
		motd:     motdTemplate,
		remoteIP: remoteIP(conn.conn),
	}
}

// Run reads and dispatches frames until the connection closes or a fatal
// protocol error occurs. It blocks until the session ends.
func (s *Session) Run() {
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	go s.conn.writePump()
	defer s.teardown()

	for {
		line, err := s.conn.readLine()
		if err != nil {
			return
		}
		if len(line) == 0 {
			continue
		}
		if !s.handleLine(s.ctx, line) {
			return
		}
	}
}

// handleLine decodes and dispatches every command on one line, in source
// key order (spec.md §4.1). It returns false when the connection must
// close, having already sent any appropriate Error frame.
func (s *Session) handleLine(ctx context.Context, line []byte) bool {
	cmds, err := decodeLine(line)
	if err != nil {
		s.sendError(ctx, "malformed frame")
		metrics.FramesProcessed.WithLabelValues("unknown", "decode_error").Inc()
		return false
	}

	for _, cmd := range cmds {
		if !isKnownTag(cmd.Tag) {
			s.sendError(ctx, fmt.Sprintf("unknown command %q", cmd.Tag))
			metrics.FramesProcessed.WithLabelValues(cmd.Tag, "unknown_tag").Inc()
			return false
		}
		if !s.authenticated && cmd.Tag != TagTLS && cmd.Tag != TagHello {
			s.sendError(ctx, "not authenticated")
			metrics.FramesProcessed.WithLabelValues(cmd.Tag, "unauthenticated").Inc()
			return false
		}

		if err := s.dispatch(ctx, cmd); err != nil {
			metrics.FramesProcessed.WithLabelValues(cmd.Tag, "error").Inc()
			return false
		}
		metrics.FramesProcessed.WithLabelValues(cmd.Tag, "ok").Inc()
	}
	return true
}

func (s *Session) dispatch(ctx context.Context, cmd command) error {
	switch cmd.Tag {
	case TagTLS:
		return s.handleTLS(ctx, cmd.Payload)
	case TagHello:
		return s.handleHello(ctx, cmd.Payload)
	case TagSet:
		return s.handleSet(ctx, cmd.Payload)
	case TagState:
		return s.handleState(ctx, cmd.Payload)
	case TagChat:
		return s.handleChat(ctx, cmd.Payload)
	case TagList:
		return s.handleList(ctx)
	case TagError:
		// Clients may echo an Error back; nothing to do.
		return nil
	}
	return fmt.Errorf("protocol: unreachable tag %q", cmd.Tag)
}

// fail logs and returns an error that callers propagate to end the
// session after sending reason to the peer.
func (s *Session) fail(ctx context.Context, reason string) error {
	s.sendError(ctx, reason)
	return fmt.Errorf("protocol: %s", reason)
}

func (s *Session) sendError(ctx context.Context, reason string) {
	if err := s.conn.WriteFrame(map[string]interface{}{
		TagError: map[string]interface{}{"message": reason},
	}); err != nil {
		logging.Warn(ctx, "protocol: failed to send Error frame", zap.Error(err))
	}
}

func (s *Session) teardown() {
	s.cancel()
	if s.watcher != nil {
		room := s.watcher.Room()
		name := s.watcher.Name()
		s.manager.Leave(s.ctx, s.watcher)
		s.manager.ReleaseUsername(name)
		s.watcher.Disconnect()
		if room != nil {
			room.Broadcast(context.Background(), TagSet, map[string]interface{}{
				"user": map[string]interface{}{
					string(name): map[string]interface{}{
						"event": map[string]interface{}{"left": true},
					},
				},
			}, nil)
		}
		logging.Info(context.Background(), "watcher disconnected", zap.String("watcher", string(name)))
	} else {
		_ = s.conn.Close()
	}
}
