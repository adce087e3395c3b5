package protocol

import (
	"context"
	"encoding/json"

	"github.com/weebpoly/syncplay-go/internal/v1/feature"
	"github.com/weebpoly/syncplay-go/internal/v1/room"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

type setPayload struct {
	Room           *setRoom            `json:"room"`
	File           json.RawMessage     `json:"file"`
	ControllerAuth *controllerAuthBody `json:"controllerAuth"`
	Ready          *setReady           `json:"ready"`
	PlaylistChange *setPlaylistChange  `json:"playlistChange"`
	PlaylistIndex  *setPlaylistIndex   `json:"playlistIndex"`
	Features       *types.FeatureSet   `json:"features"`
}

type setRoom struct {
	Name string `json:"name"`
}

type setReady struct {
	IsReady           bool `json:"isReady"`
	ManuallyInitiated bool `json:"manuallyInitiated"`
}

type setPlaylistChange struct {
	Files []string `json:"files"`
}

type setPlaylistIndex struct {
	Index int `json:"index"`
}

type fileInfoWire struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"`
}

// handleSet dispatches every sub-command present on a Set frame, per
// spec.md §4.3. Sub-commands are independent; an error in one does not
// prevent the others from running, matching §4.1's iteration-order
// dispatch for multi-command frames.
func (s *Session) handleSet(ctx context.Context, payload json.RawMessage) error {
	var set setPayload
	if err := json.Unmarshal(payload, &set); err != nil {
		return s.fail(ctx, "malformed Set")
	}

	w := s.watcher

	if set.Room != nil {
		s.setRoom(ctx, set.Room.Name)
	}
	if len(set.File) > 0 {
		s.setFile(ctx, set.File)
	}
	if set.ControllerAuth != nil {
		s.handleControllerAuth(ctx, *set.ControllerAuth)
	}
	if set.Ready != nil && !s.cfg.DisableReady {
		s.setReady(ctx, *set.Ready)
	}
	if set.PlaylistChange != nil {
		s.setPlaylistChange(ctx, set.PlaylistChange.Files)
	}
	if set.PlaylistIndex != nil {
		s.setPlaylistIndex(ctx, set.PlaylistIndex.Index)
	}
	if set.Features != nil {
		w.SetFeatures(*set.Features)
	}
	return nil
}

func (s *Session) setRoom(ctx context.Context, name string) {
	w := s.watcher
	old := w.Room()
	newRoomName := types.RoomName(truncate(name, s.cfg.MaxRoomNameLength))

	if old != nil {
		old.Broadcast(ctx, TagSet, map[string]interface{}{
			"user": map[string]interface{}{
				string(w.Name()): map[string]interface{}{"room": map[string]interface{}{"name": string(old.Name())}, "event": map[string]interface{}{"left": true}},
			},
		}, w)
	}

	r := s.manager.Join(ctx, w, newRoomName)
	s.startStatePump(w, r)

	r.Broadcast(ctx, TagSet, map[string]interface{}{
		"user": map[string]interface{}{
			string(w.Name()): map[string]interface{}{"room": map[string]interface{}{"name": string(newRoomName)}},
		},
	}, w)
}

func (s *Session) setFile(ctx context.Context, raw json.RawMessage) {
	var f fileInfoWire
	if err := json.Unmarshal(raw, &f); err != nil {
		return
	}
	f.Name = truncate(f.Name, s.cfg.MaxFilenameLength)

	w := s.watcher
	w.SetFile(&types.FileInfo{Name: f.Name, Size: f.Size, Duration: f.Duration})

	r := w.Room()
	if r == nil {
		return
	}
	r.Broadcast(ctx, TagSet, map[string]interface{}{
		"user": map[string]interface{}{
			string(w.Name()): map[string]interface{}{
				"file": map[string]interface{}{"name": f.Name, "size": f.Size, "duration": f.Duration},
			},
		},
	}, w)
}

func (s *Session) setReady(ctx context.Context, body setReady) {
	w := s.watcher
	if body.IsReady {
		w.SetReady(types.ReadyTrue)
	} else {
		w.SetReady(types.ReadyFalse)
	}

	r := w.Room()
	if r == nil {
		return
	}
	broadcastGated(ctx, r, TagSet, map[string]interface{}{
		"ready": map[string]interface{}{
			"username":          string(w.Name()),
			"isReady":           body.IsReady,
			"manuallyInitiated": body.ManuallyInitiated,
		},
	}, feature.UserReadyMinVersion)
}

func (s *Session) setPlaylistChange(ctx context.Context, files []string) {
	w := s.watcher
	r, ok := w.Room().(*room.Room)
	if !ok || r == nil {
		return
	}

	if !r.CanControl(w) || !room.PlaylistIsValid(files) {
		existing, _ := r.Playlist()
		w.Send(ctx, TagSet, map[string]interface{}{
			"playlistChange": map[string]interface{}{"user": string(w.Name()), "files": existing},
		})
		return
	}

	r.SetPlaylist(files)
	broadcastGated(ctx, r, TagSet, map[string]interface{}{
		"playlistChange": map[string]interface{}{"user": string(w.Name()), "files": files},
	}, feature.SharedPlaylistMinVersion)
}

func (s *Session) setPlaylistIndex(ctx context.Context, index int) {
	w := s.watcher
	r, ok := w.Room().(*room.Room)
	if !ok || r == nil {
		return
	}

	if !r.CanControl(w) || !r.SetPlaylistIndex(index) {
		_, existingIndex := r.Playlist()
		w.Send(ctx, TagSet, map[string]interface{}{
			"playlistIndex": map[string]interface{}{"user": string(w.Name()), "index": existingIndex},
		})
		return
	}

	broadcastGated(ctx, r, TagSet, map[string]interface{}{
		"playlistIndex": map[string]interface{}{"user": string(w.Name()), "index": index},
	}, feature.SharedPlaylistMinVersion)
}

// gateByVersion reports whether member should receive a message that
// requires at least minVersion, per spec.md §4.8.
func gateByVersion(member types.WatcherInterface, minVersion string) bool {
	return feature.MeetsMinVersion(member.Version(), minVersion)
}

// broadcastGated sends payload to every member of r whose advertised
// version meets minVersion (spec.md §4.8).
func broadcastGated(ctx context.Context, r *room.Room, tag string, payload interface{}, minVersion string) {
	for _, member := range r.Watchers() {
		if gateByVersion(member, minVersion) {
			member.Send(ctx, tag, payload)
		}
	}
}
