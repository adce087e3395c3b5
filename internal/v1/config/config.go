// Package config validates and loads the environment-variable
// configuration consumed by the core. Per spec.md §1, CLI/env resolution
// itself is an external collaborator — this package is that collaborator's
// concrete implementation for the shipped binary, not something the core
// reaches into directly.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"go.uber.org/zap"
)

// Config holds the server's validated runtime configuration.
type Config struct {
	Port     int
	AdminPort int

	// Password is the plaintext server password; empty means no password
	// is required. It is compared as MD5 on the wire per spec.md §9 — a
	// wire-compatibility requirement, not a security choice.
	Password string

	MOTDFilePath     string
	OldClientWarning bool

	IsolateRooms bool
	DisableReady bool
	DisableChat  bool

	// Salt is the server-wide secret used to derive controlled-room
	// hashes. If empty at startup, a random one is generated and logged.
	Salt string

	MaxChatMessageLength int
	MaxUsernameLength    int
	MaxRoomNameLength    int
	MaxFilenameLength    int

	StatsDBFile  string
	TLSCertPath  string

	DevelopmentMode bool

	// WireProxyUpstream, when non-empty, runs the optional pass-through
	// front-end (spec.md §4.9) on WireProxyPort, forwarding to this
	// "host:port" alongside the core protocol listener.
	WireProxyUpstream string
	WireProxyPort     int
}

// Defaults matching spec.md's data model bounds.
const (
	DefaultPort                 = 8999
	DefaultAdminPort             = 8998
	DefaultMaxUsernameLength    = 150
	DefaultMaxRoomNameLength    = 35
	DefaultMaxFilenameLength    = 250
	DefaultMaxChatMessageLength = 1000
)

// FromEnv loads configuration from environment variables, applying the
// defaults above. Unlike the teacher's ValidateEnv, none of these
// variables are strictly required: the server has sane defaults for all
// of them, matching original_source/syncplay/ep_server.go's
// ConfigurationGetter (argparse with env fallback, everything optional).
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                 DefaultPort,
		AdminPort:            DefaultAdminPort,
		MaxUsernameLength:    DefaultMaxUsernameLength,
		MaxRoomNameLength:    DefaultMaxRoomNameLength,
		MaxFilenameLength:    DefaultMaxFilenameLength,
		MaxChatMessageLength: DefaultMaxChatMessageLength,
	}

	var errs []string

	if v := os.Getenv("SYNCPLAY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("SYNCPLAY_PORT must be a valid port (got %q)", v))
		} else {
			cfg.Port = p
		}
	}
	if v := os.Getenv("SYNCPLAY_ADMIN_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("SYNCPLAY_ADMIN_PORT must be a valid port (got %q)", v))
		} else {
			cfg.AdminPort = p
		}
	}

	cfg.Password = os.Getenv("SYNCPLAY_PASSWORD")
	cfg.MOTDFilePath = os.Getenv("SYNCPLAY_MOTD_FILE")
	cfg.Salt = os.Getenv("SYNCPLAY_SALT")
	cfg.StatsDBFile = os.Getenv("SYNCPLAY_STATS_DB")
	cfg.TLSCertPath = os.Getenv("SYNCPLAY_TLS_PATH")
	cfg.WireProxyUpstream = os.Getenv("SYNCPLAY_PROXY_UPSTREAM")

	cfg.IsolateRooms = os.Getenv("SYNCPLAY_ISOLATE_ROOMS") == "true"
	cfg.DisableReady = os.Getenv("SYNCPLAY_DISABLE_READY") == "true"
	cfg.DisableChat = os.Getenv("SYNCPLAY_DISABLE_CHAT") == "true"
	cfg.OldClientWarning = getEnvOrDefault("SYNCPLAY_WARN_OLD_CLIENTS", "true") == "true"
	cfg.DevelopmentMode = os.Getenv("SYNCPLAY_DEV") == "true"

	if v := os.Getenv("SYNCPLAY_MAX_CHAT_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("SYNCPLAY_MAX_CHAT_LENGTH must be a non-negative integer (got %q)", v))
		} else {
			cfg.MaxChatMessageLength = n
		}
	}
	if v := os.Getenv("SYNCPLAY_MAX_USERNAME_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("SYNCPLAY_MAX_USERNAME_LENGTH must be a non-negative integer (got %q)", v))
		} else {
			cfg.MaxUsernameLength = n
		}
	}

	if v := os.Getenv("SYNCPLAY_PROXY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("SYNCPLAY_PROXY_PORT must be a valid port (got %q)", v))
		} else {
			cfg.WireProxyPort = p
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func logValidatedConfig(cfg *Config) {
	logging.Info(context.Background(), "configuration validated",
		zap.Int("port", cfg.Port),
		zap.Int("admin_port", cfg.AdminPort),
		zap.Bool("password_set", cfg.Password != ""),
		zap.String("motd_file", cfg.MOTDFilePath),
		zap.Bool("isolate_rooms", cfg.IsolateRooms),
		zap.Bool("disable_ready", cfg.DisableReady),
		zap.Bool("disable_chat", cfg.DisableChat),
		zap.String("salt", redactSecret(cfg.Salt)),
		zap.String("stats_db", cfg.StatsDBFile),
		zap.String("tls_cert_path", cfg.TLSCertPath),
		zap.String("wire_proxy_upstream", cfg.WireProxyUpstream),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret shows only that a secret is set, never its value.
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
