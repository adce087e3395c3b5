// Package room implements the Room and ControlledRoom data model: member
// bookkeeping, the authoritative paused/position/setBy triple, playlist
// state, and (for controlled rooms) the controller set.
//
// Room never imports the watcher package; it only deals in
// types.WatcherInterface, mirroring the teacher's room package dealing
// only in types.ClientInterface. The locking shape — exported methods
// acquire r.mu, "Locked" helpers assume it's already held — is grounded on
// the teacher's internal/v1/room/room.go and methods.go.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/password"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

// PlaylistMaxItems and PlaylistMaxCharacters bound a shared playlist
// (spec.md §3/§8).
const (
	PlaylistMaxItems      = 250
	PlaylistMaxCharacters = 10000
)

// positionStaleAfter is the age at which Room.GetPosition re-elects a
// reference watcher instead of extrapolating (spec.md §4.4).
const positionStaleAfter = 1 * time.Second

// Room is a named synchronization group with a single authoritative
// playback cursor.
type Room struct {
	mu sync.Mutex

	name     types.RoomName
	watchers map[types.Username]types.WatcherInterface

	paused     bool
	setBy      types.WatcherInterface
	position   float64
	lastUpdate time.Time

	playlist      []string
	playlistIndex *int

	// controllers is nil for an uncontrolled room; non-nil (possibly
	// empty) for a controlled one.
	controllers map[types.Username]struct{}
}

// New creates an empty room. Rooms whose name matches the controlled-room
// shape start with an (empty) controller set.
func New(name types.RoomName) *Room {
	r := &Room{
		name:       name,
		watchers:   make(map[types.Username]types.WatcherInterface),
		paused:     true,
		lastUpdate: time.Now(),
	}
	if password.IsControlledRoom(string(name)) {
		r.controllers = make(map[types.Username]struct{})
	}
	return r
}

func (r *Room) Name() types.RoomName { return r.name }

// IsControlled reports whether this room requires controller
// authorization to mutate playback state.
func (r *Room) IsControlled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllers != nil
}

// CanControl reports whether w may mutate this room's playState, position,
// playlist, or playlistIndex. Every watcher can control an uncontrolled
// room.
func (r *Room) CanControl(w types.WatcherInterface) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllers == nil {
		return true
	}
	if w == nil {
		return false
	}
	_, ok := r.controllers[w.Name()]
	return ok
}

// AddController grants controller status to name. Only meaningful on a
// controlled room.
func (r *Room) AddController(name types.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllers == nil {
		r.controllers = make(map[types.Username]struct{})
	}
	r.controllers[name] = struct{}{}
}

// AddWatcher registers w as a member of this room.
func (r *Room) AddWatcher(w types.WatcherInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers[w.Name()] = w
}

// RemoveWatcher removes w from this room. Per spec.md §3, position resets
// to zero the moment the watcher set becomes empty.
func (r *Room) RemoveWatcher(w types.WatcherInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, w.Name())
	if len(r.watchers) == 0 {
		r.position = 0
		r.setBy = nil
		r.paused = true
	}
}

// WatcherCount returns the number of members.
func (r *Room) WatcherCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// Watchers returns a snapshot of the current members. Callers must treat
// the slice as immutable.
func (r *Room) Watchers() []types.WatcherInterface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchersLocked()
}

func (r *Room) watchersLocked() []types.WatcherInterface {
	out := make([]types.WatcherInterface, 0, len(r.watchers))
	for _, w := range r.watchers {
		out = append(out, w)
	}
	return out
}

// Broadcast sends tag/payload to every member except except (nil sends to
// everyone). The snapshot is taken at call time: a watcher joining
// mid-broadcast never receives that round (spec.md §5).
func (r *Room) Broadcast(ctx context.Context, tag string, payload interface{}, except types.WatcherInterface) {
	for _, w := range r.Watchers() {
		if w == except {
			continue
		}
		w.Send(ctx, tag, payload)
	}
}

// GetPosition implements the lazy reconciliation algorithm of spec.md
// §4.4.
func (r *Room) GetPosition() (position float64, paused bool, setBy types.Username, hasSetBy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getPositionLocked()
}

func (r *Room) getPositionLocked() (float64, bool, types.Username, bool) {
	now := time.Now()
	age := now.Sub(r.lastUpdate)

	if age > positionStaleAfter {
		if best := r.electReferenceLocked(); best != nil {
			r.position = best.Position()
			r.setBy = best
			r.lastUpdate = now
			age = 0
		}
	}

	pos := r.position
	if !r.paused {
		pos += age.Seconds()
	}
	if r.setBy != nil {
		return pos, r.paused, r.setBy.Name(), true
	}
	return pos, r.paused, "", false
}

// electReferenceLocked picks the watcher with the smallest reported
// position among the room's voting pool (controllers for a controlled
// room, all watchers otherwise). Watchers with no file loaded never vote.
func (r *Room) electReferenceLocked() types.WatcherInterface {
	var best types.WatcherInterface
	for name, w := range r.watchers {
		if r.controllers != nil {
			if _, ok := r.controllers[name]; !ok {
				continue
			}
		}
		if w.File() == nil {
			continue
		}
		if best == nil || w.Position() < best.Position() {
			best = w
		}
	}
	return best
}

// SetPlayState sets the authoritative paused flag and, when setBy is
// non-nil, the watcher credited with the change.
func (r *Room) SetPlayState(paused bool, setBy types.WatcherInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
	if setBy != nil {
		r.setBy = setBy
	}
	r.lastUpdate = time.Now()
}

// ForcePositionUpdate implements spec.md §4.4's forcePositionUpdate: if by
// can control the room, its reported state becomes authoritative and every
// member receives a forced State; otherwise only the offender is
// re-synced: first an echo of its own reported paused flag (back-compat
// for very old clients), then the room's real, unchanged authoritative
// state — both with doSeek forced true.
func (r *Room) ForcePositionUpdate(ctx context.Context, by types.WatcherInterface, doSeek bool, paused bool) {
	if !r.CanControl(by) {
		position, roomPaused, setBy, hasSetBy := r.GetPosition()
		by.SendState(ctx, position, paused, true, setBy, hasSetBy, false)
		by.SendState(ctx, position, roomPaused, true, setBy, hasSetBy, false)
		return
	}

	r.mu.Lock()
	r.position = by.Position()
	r.paused = paused
	r.setBy = by
	r.lastUpdate = time.Now()
	position := r.position
	members := r.watchersLocked()
	r.mu.Unlock()

	for _, w := range members {
		w.SendState(ctx, position, paused, doSeek, by.Name(), true, true)
	}
}

// Playlist returns a copy of the current playlist and its index.
func (r *Room) Playlist() ([]string, *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.playlist))
	copy(out, r.playlist)
	var idx *int
	if r.playlistIndex != nil {
		v := *r.playlistIndex
		idx = &v
	}
	return out, idx
}

// SetPlaylist validates and installs files as the room's playlist. It
// returns false (without mutating state) if files violates the item-count
// or total-character bounds of spec.md §8.
func (r *Room) SetPlaylist(files []string) bool {
	if !PlaylistIsValid(files) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playlist = append([]string(nil), files...)
	r.playlistIndex = nil
	return true
}

// SetPlaylistIndex installs idx as the current playlist position, if
// in-range.
func (r *Room) SetPlaylistIndex(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.playlist) {
		return false
	}
	r.playlistIndex = &idx
	return true
}

// PlaylistIsValid reports whether files can be installed as a playlist:
// at most PlaylistMaxItems entries, at most PlaylistMaxCharacters total
// characters across them.
func PlaylistIsValid(files []string) bool {
	if len(files) > PlaylistMaxItems {
		return false
	}
	total := 0
	for _, f := range files {
		total += len(f)
	}
	return total <= PlaylistMaxCharacters
}
