package protocol

import (
	"context"
	"encoding/json"

	"github.com/weebpoly/syncplay-go/internal/v1/feature"
	"github.com/weebpoly/syncplay-go/internal/v1/room"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

// readyStateWire renders a ReadyState for the wire: null when unknown.
func readyStateWire(r types.ReadyState) interface{} {
	switch r {
	case types.ReadyTrue:
		return true
	case types.ReadyFalse:
		return false
	default:
		return nil
	}
}

// handleChat fans a chat message out to every room member running a
// recent enough client, per spec.md §4.8. Disabled outright when
// disableChat is configured.
func (s *Session) handleChat(ctx context.Context, payload json.RawMessage) error {
	if s.cfg.DisableChat {
		return nil
	}

	var msg string
	if err := json.Unmarshal(payload, &msg); err != nil {
		return s.fail(ctx, "malformed Chat")
	}
	msg = truncate(msg, s.cfg.MaxChatMessageLength)

	w := s.watcher
	r, ok := w.Room().(*room.Room)
	if !ok || r == nil {
		return nil
	}

	broadcastGated(ctx, r, TagChat, map[string]interface{}{
		"username": string(w.Name()),
		"message":  msg,
	}, feature.ChatMinVersion)
	return nil
}

// handleList replies with a room roster: each member's reported position,
// file, and readiness, keyed by room name. When isolateRooms is set the
// roster is confined to the caller's own room, per spec.md §3; otherwise
// every room the manager knows about is included, giving watchers
// visibility across the whole server.
func (s *Session) handleList(ctx context.Context) error {
	w := s.watcher

	rooms := []*room.Room{}
	if s.manager.IsolateRooms() {
		if r, ok := w.Room().(*room.Room); ok && r != nil {
			rooms = append(rooms, r)
		}
	} else {
		rooms = s.manager.AllRooms()
	}
	if len(rooms) == 0 {
		return nil
	}

	reply := map[string]interface{}{}
	for _, r := range rooms {
		entries := map[string]interface{}{}
		for _, member := range r.Watchers() {
			var file interface{}
			if f := member.File(); f != nil {
				file = map[string]interface{}{"name": f.Name, "size": f.Size, "duration": f.Duration}
			}
			entries[string(member.Name())] = map[string]interface{}{
				"position": member.Position(),
				"file":     file,
				"isReady":  readyStateWire(member.Ready()),
			}
		}
		reply[string(r.Name())] = entries
	}

	w.Send(ctx, TagList, reply)
	return nil
}

// handleTLS implements spec.md §4.2's in-band TLS upgrade: only honored
// while Unauthenticated, and only results in an upgrade when a
// certificate context is actually configured.
func (s *Session) handleTLS(ctx context.Context, payload json.RawMessage) error {
	var body struct {
		StartTLS string `json:"startTLS"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return s.fail(ctx, "malformed TLS")
	}
	if body.StartTLS != "send" {
		return nil
	}
	if s.authenticated {
		return s.fail(ctx, "TLS upgrade only permitted before Hello")
	}

	s.tls.CheckAndReload(ctx)
	if !s.tls.Accepts() {
		return s.conn.WriteFrame(map[string]interface{}{"startTLS": "false"})
	}

	if err := s.conn.WriteFrame(map[string]interface{}{"startTLS": "true"}); err != nil {
		return err
	}
	if err := s.conn.startTLS(s.tls.Config()); err != nil {
		return s.fail(ctx, "TLS handshake failed")
	}
	return nil
}
