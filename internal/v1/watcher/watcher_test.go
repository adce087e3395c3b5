package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []types.OutFrame
	closed bool
	failAt int
}

func (f *fakeConn) WriteFrame(frame types.OutFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) framesLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestWatcherFieldAccessors(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{Chat: true}, conn)

	assert.Equal(t, types.Username("ann"), w.Name())
	w.SetPosition(42.5)
	assert.Equal(t, 42.5, w.Position())

	w.SetFile(&types.FileInfo{Name: "movie.mkv"})
	assert.Equal(t, "movie.mkv", w.File().Name)

	w.SetReady(types.ReadyTrue)
	assert.Equal(t, types.ReadyTrue, w.Ready())
}

func TestWatcherSendEnqueuesFrame(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)

	w.Send(context.Background(), "Chat", map[string]string{"message": "hi"})

	assert.Equal(t, 1, conn.framesLen())
}

func TestWatcherDisconnectClosesConn(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)

	w.Disconnect()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
}

func TestWatcherTimedOut(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)
	w.SetLastUpdatedOn(time.Now().Add(-13 * time.Second))

	assert.True(t, w.TimedOut(time.Now()))
}

func TestWatcherIgnoringOnTheFlyBookkeeping(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)

	assert.Equal(t, 1, w.IncServerIgnoringOnTheFly())
	assert.Equal(t, 2, w.IncServerIgnoringOnTheFly())
	w.SetServerIgnoringOnTheFly(0)
	assert.Equal(t, 0, w.ServerIgnoringOnTheFly())
}

func TestSendStateForcedIncrementsServerIgnoringOnTheFly(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)

	w.SendState(context.Background(), 10, false, true, "ann", true, true)

	assert.Equal(t, 1, w.ServerIgnoringOnTheFly())
	assert.Equal(t, 1, conn.framesLen())
}

func TestSendStateNonForcedSuppressedWhileIgnoring(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)
	w.SetServerIgnoringOnTheFly(1)

	w.SendState(context.Background(), 10, false, false, "", false, false)

	assert.Equal(t, 0, conn.framesLen())
}

func TestStartStatePumpTicksUntilCancelled(t *testing.T) {
	conn := &fakeConn{}
	w := New("ann", "1.6.5", types.FeatureSet{}, conn)

	ticks := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origInterval := StateInterval
	_ = origInterval

	w.StartStatePump(ctx, func(now time.Time) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one pump tick within the default interval")
	}
}
