package protocol

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/weebpoly/syncplay-go/internal/v1/config"
	"github.com/weebpoly/syncplay-go/internal/v1/feature"
	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
	"github.com/weebpoly/syncplay-go/internal/v1/watcher"
	"go.uber.org/zap"
)

type helloRoom struct {
	Name string `json:"name"`
}

type helloPayload struct {
	Username    string           `json:"username"`
	Password    string           `json:"password"`
	Room        helloRoom        `json:"room"`
	Version     string           `json:"version"`
	RealVersion string           `json:"realversion"`
	Features    types.FeatureSet `json:"features"`
}

// effectiveVersion prefers realversion over version, per spec.md §4.2.
func (h helloPayload) effectiveVersion() string {
	if h.RealVersion != "" {
		return h.RealVersion
	}
	return h.Version
}

// handleHello processes a Hello frame while Unauthenticated. On success it
// creates the watcher, joins the room, and replies; on any validation
// failure it returns an error describing why the connection must close.
func (s *Session) handleHello(ctx context.Context, payload json.RawMessage) error {
	var h helloPayload
	if err := json.Unmarshal(payload, &h); err != nil {
		return s.fail(ctx, "malformed Hello")
	}

	username := truncate(h.Username, s.cfg.MaxUsernameLength)
	roomName := truncate(h.Room.Name, s.cfg.MaxRoomNameLength)
	version := h.effectiveVersion()

	if username == "" || roomName == "" || version == "" {
		return s.fail(ctx, "username, room and version are required")
	}

	if s.cfg.Password != "" {
		sum := md5.Sum([]byte(s.cfg.Password))
		if hex.EncodeToString(sum[:]) != h.Password {
			return s.fail(ctx, "invalid password")
		}
	}

	unique := s.manager.UniqueUsername(types.Username(username))
	w := watcher.New(unique, version, h.Features, s.conn)
	s.watcher = w
	s.authenticated = true

	room := s.manager.Join(ctx, w, types.RoomName(roomName))

	logging.Info(ctx, "watcher joined",
		zap.String("watcher", string(unique)), zap.String("room", roomName))

	motd := renderMOTD(s.motd, s.cfg, version, s.remoteIP, string(unique), roomName)

	w.Send(ctx, TagHello, map[string]interface{}{
		"username":    string(unique),
		"room":        map[string]interface{}{"name": roomName},
		"version":     version,
		"realversion": feature.ServerVersion,
		"motd":        motd,
		"features":    serverFeatures(s.cfg),
	})

	room.Broadcast(ctx, TagSet, map[string]interface{}{
		"user": map[string]interface{}{
			string(unique): map[string]interface{}{
				"event": map[string]interface{}{"joined": true},
			},
		},
	}, w)

	s.startStatePump(w, room)
	return nil
}

// serverFeatures is the capability bag the server advertises in its own
// Hello reply, derived from the running configuration.
func serverFeatures(cfg *config.Config) types.FeatureSet {
	return types.FeatureSet{
		SharedPlaylists:      true,
		Chat:                 !cfg.DisableChat,
		FeatureList:          true,
		Readiness:            !cfg.DisableReady,
		ManagedRooms:         true,
		MaxChatMessageLength: cfg.MaxChatMessageLength,
		MaxUsernameLength:    cfg.MaxUsernameLength,
		MaxRoomNameLength:    cfg.MaxRoomNameLength,
		MaxFilenameLength:    cfg.MaxFilenameLength,
		IsolateRooms:         cfg.IsolateRooms,
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
