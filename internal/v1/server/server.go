// Package server binds the line-protocol TCP listener and wires every
// connection into the protocol package's session state machine, grounded
// on original_source/syncplay/server.py's SyncplayProxyTCPFactory (minus
// Twisted: idiomatic Go prefers a blocking net.Listener accept loop with
// one goroutine per connection over a reactor factory).
package server

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/weebpoly/syncplay-go/internal/v1/config"
	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/protocol"
	"github.com/weebpoly/syncplay-go/internal/v1/roommanager"
	"github.com/weebpoly/syncplay-go/internal/v1/tlscontext"
	"go.uber.org/zap"
)

// Server owns the core protocol's TCP listener.
type Server struct {
	cfg     *config.Config
	manager *roommanager.Manager
	tls     *tlscontext.Context
	motd    string
}

// New loads the MOTD template (if configured) and returns a Server ready
// to accept connections.
func New(cfg *config.Config, manager *roommanager.Manager, tlsCtx *tlscontext.Context) *Server {
	return &Server{
		cfg:     cfg,
		manager: manager,
		tls:     tlsCtx,
		motd:    loadMOTDTemplate(cfg.MOTDFilePath),
	}
}

func loadMOTDTemplate(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn(context.Background(), "server: could not read MOTD file, continuing without one",
			zap.String("path", path), zap.Error(err))
		return ""
	}
	return string(data)
}

// ListenAndServe binds the configured port and accepts connections until
// ctx is cancelled. It tries a dual-stack "tcp" bind first and falls back
// to "tcp4"; per spec.md §6, binding one family is sufficient to start.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		ln, err = net.Listen("tcp4", addr)
		if err != nil {
			return fmt.Errorf("server: neither IPv6 nor IPv4 bind succeeded on %s: %w", addr, err)
		}
		logging.Warn(ctx, "server: dual-stack bind failed, listening on IPv4 only", zap.String("addr", addr))
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logging.Info(ctx, "server: listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logging.Warn(ctx, "server: accept failed", zap.Error(err))
				continue
			}
		}
		go protocol.Serve(ctx, conn, s.manager, s.cfg, s.tls, s.motd)
	}
}
