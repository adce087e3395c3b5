package protocol

import (
	"context"

	"github.com/weebpoly/syncplay-go/internal/v1/metrics"
	"github.com/weebpoly/syncplay-go/internal/v1/password"
	"github.com/weebpoly/syncplay-go/internal/v1/roommanager"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

type controllerAuthBody struct {
	Password string `json:"password"`
	Room     string `json:"room"`
}

// handleControllerAuth implements spec.md §4.6: verifying a controller
// password against a controlled room's hash, or minting a fresh
// controlled-room name for an uncontrolled one.
func (s *Session) handleControllerAuth(ctx context.Context, body controllerAuthBody) {
	w := s.watcher

	if !password.PasswordFormat.MatchString(body.Password) {
		metrics.ControllerAuthAttempts.WithLabelValues("bad_format").Inc()
		w.Send(ctx, TagSet, map[string]interface{}{
			"controllerAuth": map[string]interface{}{"success": false},
		})
		return
	}

	if !password.IsControlledRoom(body.Room) {
		newName := password.ControlledRoomName(body.Room, body.Password, s.cfg.Salt)
		metrics.ControllerAuthAttempts.WithLabelValues("minted").Inc()
		w.Send(ctx, TagSet, map[string]interface{}{
			"newControlledRoom": map[string]interface{}{"password": body.Password, "roomName": newName},
		})
		return
	}

	ok, err := password.Check(body.Room, body.Password, s.cfg.Salt)
	if err != nil || !ok {
		metrics.ControllerAuthAttempts.WithLabelValues("rejected").Inc()
		w.Send(ctx, TagSet, map[string]interface{}{
			"controllerAuth": map[string]interface{}{"success": false},
		})
		return
	}

	r := s.manager.GetOrCreateRoom(types.RoomName(body.Room))
	r.AddController(w.Name())
	metrics.ControllerAuthAttempts.WithLabelValues("accepted").Inc()

	broadcastServerWide(ctx, s.manager, TagSet, map[string]interface{}{
		"controllerAuth": map[string]interface{}{"username": string(w.Name()), "success": true, "room": body.Room},
	})
}

// broadcastServerWide sends payload to every watcher in every room the
// manager knows about. controllerAuth results are advertised server-wide
// per spec.md §4.6, unlike ordinary room events.
func broadcastServerWide(ctx context.Context, manager *roommanager.Manager, tag string, payload interface{}) {
	for _, r := range manager.AllRooms() {
		r.Broadcast(ctx, tag, payload, nil)
	}
}
