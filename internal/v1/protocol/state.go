package protocol

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/metrics"
	"github.com/weebpoly/syncplay-go/internal/v1/room"
	"github.com/weebpoly/syncplay-go/internal/v1/watcher"
)

type statePlaystate struct {
	Position float64 `json:"position"`
	Paused   bool    `json:"paused"`
	DoSeek   bool    `json:"doSeek"`
}

type stateIgnoring struct {
	Server *int `json:"server"`
	Client *int `json:"client"`
}

type statePing struct {
	LatencyCalculation       float64  `json:"latencyCalculation"`
	ClientRtt                float64  `json:"clientRtt"`
	ClientLatencyCalculation *float64 `json:"clientLatencyCalculation"`
}

type statePayload struct {
	Playstate        *statePlaystate `json:"playstate"`
	Ping             *statePing      `json:"ping"`
	IgnoringOnTheFly *stateIgnoring  `json:"ignoringOnTheFly"`
}

// handleState implements the five-step inbound State processing of
// spec.md §4.4.
func (s *Session) handleState(ctx context.Context, payload json.RawMessage) error {
	var st statePayload
	if err := json.Unmarshal(payload, &st); err != nil {
		return s.fail(ctx, "malformed State")
	}

	w := s.watcher
	now := time.Now()

	if st.IgnoringOnTheFly != nil {
		if st.IgnoringOnTheFly.Server != nil && *st.IgnoringOnTheFly.Server == w.ServerIgnoringOnTheFly() {
			w.SetServerIgnoringOnTheFly(0)
		}
		if st.IgnoringOnTheFly.Client != nil {
			w.SetClientIgnoringOnTheFly(*st.IgnoringOnTheFly.Client)
		}
	}

	if st.Ping != nil {
		clientRTT := time.Duration(st.Ping.ClientRtt * float64(time.Second))
		w.Ping().RecordRTT(now, st.Ping.LatencyCalculation, clientRTT)
		if st.Ping.ClientLatencyCalculation != nil {
			w.Ping().StashClientLatency(*st.Ping.ClientLatencyCalculation, now)
		}
	}

	w.SetLastUpdatedOn(now)

	if w.ServerIgnoringOnTheFly() == 0 && st.Playstate != nil {
		s.updateWatcherState(ctx, w, st.Playstate.Position, st.Playstate.Paused, st.Playstate.DoSeek)
	}
	return nil
}

// updateWatcherState is Watcher.updateState from spec.md §4.4, implemented
// against the watcher and room's public accessors since the protocol
// package, unlike room and watcher themselves, isn't bound by their
// import-cycle-avoiding interfaces.
func (s *Session) updateWatcherState(ctx context.Context, w *watcher.Watcher, position float64, paused, doSeek bool) {
	r, ok := w.Room().(*room.Room)
	if !ok || r == nil {
		return
	}

	_, roomPaused, _, _ := r.GetPosition()
	flipped := paused != roomPaused
	if flipped {
		r.SetPlayState(paused, w)
	}

	if !paused {
		position += w.Ping().ForwardDelay().Seconds()
	}
	w.SetPosition(position)

	if doSeek || flipped {
		r.ForcePositionUpdate(ctx, w, doSeek, paused)
		if r.CanControl(w) {
			metrics.ForcedUpdates.WithLabelValues("controller").Inc()
		} else {
			metrics.ForcedUpdates.WithLabelValues("resync").Inc()
		}
	}
}

// startStatePump begins the 1 Hz outbound State timer for w, and enforces
// the 12.5 s protocol timeout (spec.md §4.4).
func (s *Session) startStatePump(w *watcher.Watcher, r *room.Room) {
	w.StartStatePump(s.ctx, func(now time.Time) {
		if w.TimedOut(now) {
			w.Disconnect()
			return
		}
		position, paused, setBy, hasSetBy := r.GetPosition()
		w.SendState(s.ctx, position, paused, false, setBy, hasSetBy, false)
	})
}
