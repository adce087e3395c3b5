package roommanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

type fakeWatcher struct {
	name types.Username
	room types.RoomInterface
}

func (w *fakeWatcher) Name() types.Username         { return w.name }
func (w *fakeWatcher) SetName(n types.Username)     { w.name = n }
func (w *fakeWatcher) Room() types.RoomInterface     { return w.room }
func (w *fakeWatcher) SetRoom(r types.RoomInterface) { w.room = r }
func (w *fakeWatcher) File() *types.FileInfo         { return nil }
func (w *fakeWatcher) SetFile(*types.FileInfo)       {}
func (w *fakeWatcher) Position() float64             { return 0 }
func (w *fakeWatcher) SetPosition(float64)           {}
func (w *fakeWatcher) LastUpdatedOn() time.Time      { return time.Time{} }
func (w *fakeWatcher) SetLastUpdatedOn(time.Time)    {}
func (w *fakeWatcher) Ready() types.ReadyState       { return types.ReadyUnknown }
func (w *fakeWatcher) SetReady(types.ReadyState)     {}
func (w *fakeWatcher) Version() string               { return "1.6.5" }
func (w *fakeWatcher) SetVersion(string)             {}
func (w *fakeWatcher) Features() types.FeatureSet    { return types.FeatureSet{} }
func (w *fakeWatcher) SetFeatures(types.FeatureSet)  {}
func (w *fakeWatcher) Send(context.Context, string, interface{}) {}
func (w *fakeWatcher) SendState(context.Context, float64, bool, bool, types.Username, bool, bool) {
}
func (w *fakeWatcher) Disconnect() {}

func TestUniqueUsernameAppendsUnderscoreOnCollision(t *testing.T) {
	m := New(false)
	a := m.UniqueUsername("ann")
	b := m.UniqueUsername("ann")
	c := m.UniqueUsername("ANN")

	assert.Equal(t, types.Username("ann"), a)
	assert.Equal(t, types.Username("ann_"), b)
	assert.Equal(t, types.Username("ann__"), c)
}

func TestReleaseUsernameFreesIt(t *testing.T) {
	m := New(false)
	m.UniqueUsername("ann")
	m.ReleaseUsername("ann")

	again := m.UniqueUsername("ann")
	assert.Equal(t, types.Username("ann"), again)
}

func TestJoinAndLeaveRemovesEmptyRoom(t *testing.T) {
	m := New(false)
	w := &fakeWatcher{name: "ann"}

	r := m.Join(context.Background(), w, "r1")
	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, r, w.Room())

	m.Leave(context.Background(), w)
	assert.Equal(t, 0, m.RoomCount())
	assert.Nil(t, w.Room())
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	m := New(false)
	w := &fakeWatcher{name: "ann"}

	m.Join(context.Background(), w, "r1")
	m.Join(context.Background(), w, "r2")

	assert.Equal(t, 1, m.RoomCount())
	assert.Equal(t, types.RoomName("r2"), w.Room().Name())
}

func TestExportRoomsReflectsMembership(t *testing.T) {
	m := New(false)
	w1 := &fakeWatcher{name: "ann"}
	w2 := &fakeWatcher{name: "bob"}
	m.Join(context.Background(), w1, "r1")
	m.Join(context.Background(), w2, "r1")

	snaps := m.ExportRooms()
	assert.Len(t, snaps, 1)
	assert.Equal(t, 2, snaps[0].WatcherCount)
}
