package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

type fakeWatcher struct {
	mu       sync.Mutex
	name     types.Username
	room     types.RoomInterface
	file     *types.FileInfo
	position float64
	updated  time.Time

	sent       []string
	states     []sentState
	disconnect bool
}

type sentState struct {
	position       float64
	paused, doSeek bool
	setBy          types.Username
	hasSetBy       bool
	forced         bool
}

func newFakeWatcher(name types.Username, position float64, hasFile bool) *fakeWatcher {
	w := &fakeWatcher{name: name, position: position, updated: time.Now()}
	if hasFile {
		w.file = &types.FileInfo{Name: "x.mkv"}
	}
	return w
}

func (w *fakeWatcher) Name() types.Username            { return w.name }
func (w *fakeWatcher) SetName(n types.Username)         { w.name = n }
func (w *fakeWatcher) Room() types.RoomInterface        { return w.room }
func (w *fakeWatcher) SetRoom(r types.RoomInterface)    { w.room = r }
func (w *fakeWatcher) File() *types.FileInfo            { return w.file }
func (w *fakeWatcher) SetFile(f *types.FileInfo)        { w.file = f }
func (w *fakeWatcher) Position() float64                { return w.position }
func (w *fakeWatcher) SetPosition(p float64)            { w.position = p }
func (w *fakeWatcher) LastUpdatedOn() time.Time         { return w.updated }
func (w *fakeWatcher) SetLastUpdatedOn(t time.Time)     { w.updated = t }
func (w *fakeWatcher) Ready() types.ReadyState          { return types.ReadyUnknown }
func (w *fakeWatcher) SetReady(types.ReadyState)        {}
func (w *fakeWatcher) Version() string                  { return "1.6.5" }
func (w *fakeWatcher) SetVersion(string)                {}
func (w *fakeWatcher) Features() types.FeatureSet       { return types.FeatureSet{} }
func (w *fakeWatcher) SetFeatures(types.FeatureSet)     {}
func (w *fakeWatcher) Disconnect()                      { w.disconnect = true }

func (w *fakeWatcher) Send(_ context.Context, tag string, _ interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, tag)
}

func (w *fakeWatcher) SendState(_ context.Context, position float64, paused, doSeek bool, setBy types.Username, hasSetBy bool, forced bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, sentState{position, paused, doSeek, setBy, hasSetBy, forced})
}

func TestNewRoomIsUncontrolledByDefault(t *testing.T) {
	r := New("r1")
	assert.False(t, r.IsControlled())
	assert.True(t, r.CanControl(newFakeWatcher("ann", 0, true)))
}

func TestControlledRoomRequiresAuthorization(t *testing.T) {
	r := New("+r2:ABCDEF012345")
	assert.True(t, r.IsControlled())

	ann := newFakeWatcher("ann", 0, true)
	assert.False(t, r.CanControl(ann))

	r.AddController("ann")
	assert.True(t, r.CanControl(ann))
}

func TestRemoveWatcherResetsPositionWhenEmpty(t *testing.T) {
	r := New("r1")
	ann := newFakeWatcher("ann", 42, true)
	r.AddWatcher(ann)
	r.SetPlayState(false, ann)

	r.RemoveWatcher(ann)

	pos, paused, _, hasSetBy := r.GetPosition()
	assert.Equal(t, 0.0, pos)
	assert.True(t, paused)
	assert.False(t, hasSetBy)
}

func TestGetPositionElectsSmallestPositionWatcher(t *testing.T) {
	r := New("r1")
	ann := newFakeWatcher("ann", 100, true)
	bob := newFakeWatcher("bob", 20, true)
	r.AddWatcher(ann)
	r.AddWatcher(bob)

	// force staleness so an election happens
	time.Sleep(1100 * time.Millisecond)

	pos, _, setBy, hasSetBy := r.GetPosition()
	assert.True(t, hasSetBy)
	assert.Equal(t, types.Username("bob"), setBy)
	assert.Equal(t, 20.0, pos)
}

func TestGetPositionIgnoresWatchersWithoutFile(t *testing.T) {
	r := New("r1")
	ann := newFakeWatcher("ann", 100, true)
	nofile := newFakeWatcher("nf", 1, false)
	r.AddWatcher(ann)
	r.AddWatcher(nofile)

	time.Sleep(1100 * time.Millisecond)

	_, _, setBy, hasSetBy := r.GetPosition()
	assert.True(t, hasSetBy)
	assert.Equal(t, types.Username("ann"), setBy)
}

func TestForcePositionUpdateByControllerBroadcastsForced(t *testing.T) {
	r := New("r1")
	ann := newFakeWatcher("ann", 120, true)
	bob := newFakeWatcher("bob", 0, true)
	r.AddWatcher(ann)
	r.AddWatcher(bob)

	r.ForcePositionUpdate(context.Background(), ann, true, false)

	assert.Len(t, ann.states, 1)
	assert.True(t, ann.states[0].forced)
	assert.Len(t, bob.states, 1)
	assert.True(t, bob.states[0].forced)
	assert.Equal(t, 120.0, bob.states[0].position)
}

func TestForcePositionUpdateByNonControllerResyncsOffenderOnly(t *testing.T) {
	r := New("+r2:ABCDEF012345")
	ann := newFakeWatcher("ann", 0, true)
	r.AddController("ann")
	r.AddWatcher(ann)

	bob := newFakeWatcher("bob", 999, true)
	r.AddWatcher(bob)

	r.ForcePositionUpdate(context.Background(), bob, true, false)

	assert.Len(t, bob.states, 2)
	assert.Len(t, ann.states, 0)
	for _, s := range bob.states {
		assert.True(t, s.doSeek)
		assert.False(t, s.forced)
	}
}

func TestSetPlaylistRejectsTooManyItems(t *testing.T) {
	r := New("r1")
	files := make([]string, PlaylistMaxItems+1)
	for i := range files {
		files[i] = "a"
	}
	assert.False(t, r.SetPlaylist(files))

	list, idx := r.Playlist()
	assert.Empty(t, list)
	assert.Nil(t, idx)
}

func TestSetPlaylistRejectsTooManyCharacters(t *testing.T) {
	r := New("r1")
	big := make([]string, 2)
	big[0] = string(make([]byte, PlaylistMaxCharacters))
	big[1] = "x"
	assert.False(t, r.SetPlaylist(big))
}

func TestSetPlaylistAccepts(t *testing.T) {
	r := New("r1")
	assert.True(t, r.SetPlaylist([]string{"a.mkv", "b.mkv"}))
	list, idx := r.Playlist()
	assert.Equal(t, []string{"a.mkv", "b.mkv"}, list)
	assert.Nil(t, idx)

	assert.True(t, r.SetPlaylistIndex(1))
	_, idx = r.Playlist()
	assert.Equal(t, 1, *idx)

	assert.False(t, r.SetPlaylistIndex(5))
}

func TestBroadcastSkipsExcept(t *testing.T) {
	r := New("r1")
	ann := newFakeWatcher("ann", 0, true)
	bob := newFakeWatcher("bob", 0, true)
	r.AddWatcher(ann)
	r.AddWatcher(bob)

	r.Broadcast(context.Background(), "Chat", map[string]string{"message": "hi"}, ann)

	assert.Empty(t, ann.sent)
	assert.Equal(t, []string{"Chat"}, bob.sent)
}
