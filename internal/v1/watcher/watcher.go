// Package watcher implements the per-connected-client state described in
// spec.md's Watcher data model: identity, file, position, readiness, and
// the state-pump timer. It never imports the room package — it reaches its
// room exclusively through types.RoomInterface, which keeps room and
// watcher free of an import cycle.
//
// Grounded on the teacher's internal/v1/transport/client.go (the
// buffered-send-channel / write-pump shape, realized for a JSON-line
// connection in the protocol package's connection type behind Conn) and on the
// niketsu server's per-connection ping bookkeeping for the state pump.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/clock"
	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"github.com/weebpoly/syncplay-go/internal/v1/types"
	"go.uber.org/zap"
)

// ProtocolTimeout is how long a watcher may go without sending a State
// before the server drops its connection.
const ProtocolTimeout = 12500 * time.Millisecond

// StateInterval is the cadence of the per-watcher outbound state pump.
const StateInterval = 1 * time.Second

// Conn is the minimal surface the protocol layer's connection exposes to a
// Watcher: encode-and-enqueue one outbound frame, and force-close the
// underlying transport. Buffering, backpressure and the actual socket I/O
// live in the protocol package's connection type.
type Conn interface {
	WriteFrame(frame types.OutFrame) error
	Close() error
}

// Watcher is one authenticated, connected client.
type Watcher struct {
	mu sync.Mutex

	name     types.Username
	room     types.RoomInterface
	file     *types.FileInfo
	position float64
	updated  time.Time
	ready    types.ReadyState
	version  string
	features types.FeatureSet

	// Forced-update bookkeeping (spec.md §4.4/§4.5).
	serverIgnoringOnTheFly int
	clientIgnoringOnTheFly int

	ping *clock.PingTracker
	conn Conn

	pumpCancel context.CancelFunc
}

// New creates a Watcher bound to conn. The state pump is not started until
// StartStatePump is called.
func New(name types.Username, version string, features types.FeatureSet, conn Conn) *Watcher {
	return &Watcher{
		name:     name,
		version:  version,
		features: features,
		updated:  time.Now(),
		ping:     clock.New(),
		conn:     conn,
	}
}

func (w *Watcher) Name() types.Username { w.mu.Lock(); defer w.mu.Unlock(); return w.name }

func (w *Watcher) SetName(n types.Username) { w.mu.Lock(); defer w.mu.Unlock(); w.name = n }

func (w *Watcher) Room() types.RoomInterface { w.mu.Lock(); defer w.mu.Unlock(); return w.room }

func (w *Watcher) SetRoom(r types.RoomInterface) { w.mu.Lock(); defer w.mu.Unlock(); w.room = r }

func (w *Watcher) File() *types.FileInfo { w.mu.Lock(); defer w.mu.Unlock(); return w.file }

func (w *Watcher) SetFile(f *types.FileInfo) { w.mu.Lock(); defer w.mu.Unlock(); w.file = f }

func (w *Watcher) Position() float64 { w.mu.Lock(); defer w.mu.Unlock(); return w.position }

func (w *Watcher) SetPosition(p float64) { w.mu.Lock(); defer w.mu.Unlock(); w.position = p }

func (w *Watcher) LastUpdatedOn() time.Time { w.mu.Lock(); defer w.mu.Unlock(); return w.updated }

func (w *Watcher) SetLastUpdatedOn(t time.Time) { w.mu.Lock(); defer w.mu.Unlock(); w.updated = t }

func (w *Watcher) Ready() types.ReadyState { w.mu.Lock(); defer w.mu.Unlock(); return w.ready }

func (w *Watcher) SetReady(r types.ReadyState) { w.mu.Lock(); defer w.mu.Unlock(); w.ready = r }

func (w *Watcher) Version() string { w.mu.Lock(); defer w.mu.Unlock(); return w.version }

func (w *Watcher) SetVersion(v string) { w.mu.Lock(); defer w.mu.Unlock(); w.version = v }

func (w *Watcher) Features() types.FeatureSet { w.mu.Lock(); defer w.mu.Unlock(); return w.features }

func (w *Watcher) SetFeatures(f types.FeatureSet) { w.mu.Lock(); defer w.mu.Unlock(); w.features = f }

// Ping returns the connection's RTT tracker.
func (w *Watcher) Ping() *clock.PingTracker { return w.ping }

// ServerIgnoringOnTheFly returns the outstanding forced-update ack count.
func (w *Watcher) ServerIgnoringOnTheFly() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serverIgnoringOnTheFly
}

// SetServerIgnoringOnTheFly sets the outstanding forced-update ack count.
func (w *Watcher) SetServerIgnoringOnTheFly(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.serverIgnoringOnTheFly = n
}

// IncServerIgnoringOnTheFly increments the outstanding forced-update ack
// count and returns the new value.
func (w *Watcher) IncServerIgnoringOnTheFly() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.serverIgnoringOnTheFly++
	return w.serverIgnoringOnTheFly
}

// ClientIgnoringOnTheFly returns the client-reported ignore count stashed
// on the last inbound State, to be echoed on the next outbound one.
func (w *Watcher) ClientIgnoringOnTheFly() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clientIgnoringOnTheFly
}

// SetClientIgnoringOnTheFly stashes the client-reported ignore count.
func (w *Watcher) SetClientIgnoringOnTheFly(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clientIgnoringOnTheFly = n
}

// TimedOut reports whether the watcher has gone longer than
// ProtocolTimeout without a State update.
func (w *Watcher) TimedOut(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.updated) > ProtocolTimeout
}

// Send encodes tag/payload as an outbound frame and hands it to the
// connection. Write errors are logged and trigger disconnection; the
// wire protocol has no synchronous error path back to the caller here.
func (w *Watcher) Send(ctx context.Context, tag string, payload interface{}) {
	w.mu.Lock()
	conn := w.conn
	name := w.name
	w.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.WriteFrame(types.OutFrame{tag: payload}); err != nil {
		logging.Warn(ctx, "watcher: write failed, dropping connection",
			zap.String("watcher", string(name)), zap.Error(err))
		w.Disconnect()
	}
}

// SendState builds and sends one outbound State frame per spec.md §4.5:
// playstate carries position/paused/doSeek/setBy, ping carries the fresh
// outbound latencyCalculation plus the smoothed RTT and any pending
// client-latency echo. A forced update always sends; a non-forced one is
// suppressed while the watcher has outstanding unacknowledged forced
// updates.
func (w *Watcher) SendState(ctx context.Context, position float64, paused, doSeek bool, setBy types.Username, hasSetBy bool, forced bool) {
	w.mu.Lock()
	if forced {
		w.serverIgnoringOnTheFly++
	} else if w.serverIgnoringOnTheFly > 0 {
		w.mu.Unlock()
		return
	}
	clientIgnoring := w.clientIgnoringOnTheFly
	w.clientIgnoringOnTheFly = 0
	w.mu.Unlock()

	now := time.Now()
	playstate := map[string]interface{}{
		"position": position,
		"paused":   paused,
		"doSeek":   doSeek,
	}
	if hasSetBy {
		playstate["setBy"] = string(setBy)
	} else {
		playstate["setBy"] = nil
	}

	ping := map[string]interface{}{
		"latencyCalculation": clock.NextLatencyCalculation(now),
		"serverRtt":          w.ping.AvgRTT().Seconds(),
	}
	if echo, ok := w.ping.ConsumeClientLatencyEcho(now); ok {
		ping["clientLatencyCalculation"] = echo
	}

	state := map[string]interface{}{
		"playstate": playstate,
		"ping":      ping,
	}

	w.mu.Lock()
	serverIgnoring := w.serverIgnoringOnTheFly
	w.mu.Unlock()
	if serverIgnoring != 0 || clientIgnoring != 0 {
		ignoring := map[string]interface{}{}
		if serverIgnoring != 0 {
			ignoring["server"] = serverIgnoring
		}
		if clientIgnoring != 0 {
			ignoring["client"] = clientIgnoring
		}
		state["ignoringOnTheFly"] = ignoring
	}

	w.Send(ctx, "State", state)
}

// Disconnect force-closes the underlying connection and stops the state
// pump. It is idempotent.
func (w *Watcher) Disconnect() {
	w.mu.Lock()
	conn := w.conn
	cancel := w.pumpCancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// StartStatePump begins the per-watcher SERVER_STATE_INTERVAL timer,
// calling tick once per interval until ctx is cancelled or Disconnect is
// called.
func (w *Watcher) StartStatePump(ctx context.Context, tick func(now time.Time)) {
	pumpCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.pumpCancel = cancel
	w.mu.Unlock()
	clock.Schedule(pumpCtx, StateInterval, tick)
}
