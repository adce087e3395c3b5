// Package tlscontext loads and hot-reloads the server's TLS certificate
// for the optional TLS-upgrade path (spec.md §4.10).
//
// Grounded on original_source/syncplay/server.py's
// SyncplayProxyTCPFactory._allowTLSconnections / updateTLSContextFactory /
// checkLastEditCertTime: load privkey.pem+fullchain.pem (falling back to
// cert.pem+chain.pem) from a directory, record the chain file's mtime, and
// reload only when that mtime changes, capping repeated failures at
// TLS_CERT_ROTATION_MAX_RETRIES. There is no ecosystem certificate-loading
// library anywhere in the example pack; crypto/tls is the idiomatic Go
// path for this and is used directly rather than wrapping it in a library
// that doesn't exist in the corpus (see DESIGN.md).
package tlscontext

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/metrics"
	"go.uber.org/zap"
)

// TLSCertRotationMaxRetries is the number of consecutive reload failures
// at which the context drops its previous config and stops accepting TLS
// (spec.md §4.10). A later successful reload re-enables it.
const TLSCertRotationMaxRetries = 10

var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
}

// Context holds the live *tls.Config for the protocol listener's
// in-band TLS upgrade, reloading it from disk when the certificate
// directory's chain file mtime advances.
type Context struct {
	mu sync.RWMutex

	path       string
	config     *tls.Config
	accepts    bool
	chainMTime time.Time
	attempts   int
	lastErr    error
}

// New loads the certificate at path once and returns a Context. path may
// be empty, meaning TLS is disabled entirely; LastReloadError is then
// always nil and Accepts always false.
func New(path string) *Context {
	c := &Context{path: path}
	if path != "" {
		c.reload()
	}
	return c
}

// Accepts reports whether the context currently has a usable TLS config.
func (c *Context) Accepts() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepts
}

// Config returns the current TLS config, or nil if TLS is not available.
func (c *Context) Config() *tls.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// LastReloadError returns the error from the most recent reload attempt,
// or nil if the last attempt succeeded (or TLS was never configured).
func (c *Context) LastReloadError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// CheckAndReload reloads the certificate if the chain file's mtime has
// changed since the last successful load. The TLS upgrade handlers (the
// protocol session and both wire-proxy bridges) call it before answering
// startTLS, so certificate renewals are picked up without restarting the
// process.
func (c *Context) CheckAndReload(ctx context.Context) {
	if c.path == "" {
		return
	}
	mtime, err := chainMTime(c.path)
	if err != nil {
		return
	}

	c.mu.RLock()
	unchanged := mtime.Equal(c.chainMTime)
	c.mu.RUnlock()
	if unchanged {
		return
	}

	c.reload()
	c.mu.RLock()
	failed := c.lastErr != nil
	attempts := c.attempts
	c.mu.RUnlock()

	if failed {
		metrics.TLSReloads.WithLabelValues("error").Inc()
		logging.Error(ctx, "TLS certificate reload failed", zap.Int("attempts", attempts))
	} else {
		metrics.TLSReloads.WithLabelValues("ok").Inc()
		logging.Info(ctx, "TLS certificate reloaded")
	}
}

func (c *Context) reload() {
	cfg, mtime, err := loadConfig(c.path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.attempts++
		if c.attempts >= TLSCertRotationMaxRetries {
			c.accepts = false
			c.config = nil
		}
		// Below the retry cap, keep serving the previous config (if any)
		// rather than tearing down TLS on a transient read failure.
		return
	}

	c.config = cfg
	c.chainMTime = mtime
	c.accepts = true
	c.attempts = 0
	c.lastErr = nil
}

func loadConfig(path string) (*tls.Config, time.Time, error) {
	keyPath := filepath.Join(path, "privkey.pem")
	chainPath := filepath.Join(path, "fullchain.pem")
	if _, err := os.Stat(keyPath); err != nil {
		keyPath = filepath.Join(path, "cert.pem")
		chainPath = filepath.Join(path, "chain.pem")
	}

	mtime, err := fileMTime(chainPath)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat chain file: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(chainPath, keyPath)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load key pair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
	}
	return cfg, mtime, nil
}

func chainMTime(path string) (time.Time, error) {
	fullchain := filepath.Join(path, "fullchain.pem")
	if t, err := fileMTime(fullchain); err == nil {
		return t, nil
	}
	return fileMTime(filepath.Join(path, "chain.pem"))
}

func fileMTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
