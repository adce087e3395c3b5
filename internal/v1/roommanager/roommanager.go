// Package roommanager is the global room index: it enforces server-wide
// username uniqueness, creates and retires rooms, and moves watchers
// between them.
//
// Grounded on the teacher's internal/v1/transport/hub.go getOrCreateRoom/
// removeRoom shape. The teacher defers empty-room cleanup behind a grace
// period (reconnect tolerance for video calls); this manager removes an
// empty room synchronously instead, per spec.md §3's room lifecycle (see
// DESIGN.md Open Questions).
package roommanager

import (
	"context"
	"strings"
	"sync"

	"github.com/weebpoly/syncplay-go/internal/v1/room"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

// RoomSnapshot is a point-in-time view of one room, as returned by
// ExportRooms.
type RoomSnapshot struct {
	Name         types.RoomName
	WatcherCount int
}

// Manager is the server-wide room index.
type Manager struct {
	mu sync.Mutex

	rooms map[types.RoomName]*room.Room
	// usernames maps the lowercased name to the name actually in use, for
	// case-insensitive server-wide uniqueness (spec.md §3/§8).
	usernames map[string]types.Username

	isolateRooms bool
}

// New creates an empty manager. When isolateRooms is true, callers should
// scope broadcasts and lookups to the caller's own room.
func New(isolateRooms bool) *Manager {
	return &Manager{
		rooms:        make(map[types.RoomName]*room.Room),
		usernames:    make(map[string]types.Username),
		isolateRooms: isolateRooms,
	}
}

// IsolateRooms reports whether cross-room visibility is disabled.
func (m *Manager) IsolateRooms() bool { return m.isolateRooms }

// UniqueUsername reserves and returns a name derived from requested that
// is unique case-insensitively across the server, appending "_" until
// free (spec.md §4.2/§8).
func (m *Manager) UniqueUsername(requested types.Username) types.Username {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidate := requested
	for {
		key := strings.ToLower(string(candidate))
		if _, taken := m.usernames[key]; !taken {
			m.usernames[key] = candidate
			return candidate
		}
		candidate += "_"
	}
}

// ReleaseUsername frees a previously reserved name so it can be reused.
func (m *Manager) ReleaseUsername(name types.Username) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usernames, strings.ToLower(string(name)))
}

// GetOrCreateRoom returns the named room, creating it if this is the
// first reference to it.
func (m *Manager) GetOrCreateRoom(name types.RoomName) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[name]; ok {
		return r
	}
	r := room.New(name)
	m.rooms[name] = r
	return r
}

// Join moves w into the named room, leaving its current room (if any)
// first. It returns the destination room.
func (m *Manager) Join(ctx context.Context, w types.WatcherInterface, name types.RoomName) *room.Room {
	m.Leave(ctx, w)
	r := m.GetOrCreateRoom(name)
	r.AddWatcher(w)
	w.SetRoom(r)
	return r
}

// Leave removes w from its current room, if any, deleting the room from
// the index the instant it becomes empty.
func (m *Manager) Leave(ctx context.Context, w types.WatcherInterface) {
	old := w.Room()
	if old == nil {
		return
	}
	old.RemoveWatcher(w)
	w.SetRoom(nil)

	name := old.Name()
	m.mu.Lock()
	if r, ok := m.rooms[name]; ok && r.WatcherCount() == 0 {
		delete(m.rooms, name)
	}
	m.mu.Unlock()
}

// RoomCount returns the number of currently indexed rooms. Leave removes a
// room when its last watcher leaves; a room created by GetOrCreateRoom
// without a watcher joining it stays indexed.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// AllRooms returns a snapshot of every currently indexed room, for
// server-wide broadcasts such as a controllerAuth result (spec.md §4.6).
func (m *Manager) AllRooms() []*room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// ExportRooms enumerates all indexed rooms with their watcher counts; the
// admin surface's /debug/rooms endpoint renders it.
func (m *Manager) ExportRooms() []RoomSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomSnapshot, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomSnapshot{Name: name, WatcherCount: r.WatcherCount()})
	}
	return out
}
