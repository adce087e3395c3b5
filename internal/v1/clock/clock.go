// Package clock implements the per-connection ping/RTT bookkeeping and the
// ticker helper used to drive the watcher state pump.
//
// Grounded on the niketsu sync server's worker.go ping/pong handling
// (setRoundTripTime's moving average and its schedule() ticker helper) —
// the teacher repo has no equivalent since it never measures RTT.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/weebpoly/syncplay-go/internal/v1/types"
)

// weighingFactor is the exponential moving average weight applied to the
// previous RTT estimate; 0.85 matches the upstream protocol's smoothing.
const weighingFactor = 0.85

// PingTracker holds one connection's RTT moving average and forward-delay
// estimate. It must never be shared across connections.
type PingTracker struct {
	mu    sync.Mutex
	state types.PingState
}

// New returns a zero-valued tracker.
func New() *PingTracker {
	return &PingTracker{}
}

// NextLatencyCalculation returns the timestamp to embed in the outbound
// ping's "latencyCalculation" field, for the client to echo back verbatim.
func NextLatencyCalculation(now time.Time) float64 {
	return float64(now.UnixNano()) / 1e9
}

// RecordRTT implements the inbound State ping bookkeeping: now is the
// server's current time, echoedLatencyCalculation is the value the client
// echoed back from the server's last outbound ping, and clientRTT is the
// client's own self-measured round trip (zero if the client didn't report
// one).
func (p *PingTracker) RecordRTT(now time.Time, echoedLatencyCalculation float64, clientRTT time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sentAt := time.Unix(0, int64(echoedLatencyCalculation*float64(time.Second)))
	rtt := now.Sub(sentAt)
	if rtt < 0 {
		rtt = 0
	}

	if p.state.AvgRTT == 0 {
		p.state.AvgRTT = rtt
	} else {
		p.state.AvgRTT = time.Duration(weighingFactor*float64(p.state.AvgRTT) + (1-weighingFactor)*float64(rtt))
	}
	p.state.RTT = rtt

	fd := p.state.AvgRTT / 2
	if clientRTT > 0 && clientRTT < rtt {
		fd += rtt - clientRTT
	}
	p.state.ForwardDelay = fd
}

// StashClientLatency remembers the client's own ping timestamp so the next
// outbound State can echo it back with the server's processing time added.
func (p *PingTracker) StashClientLatency(value float64, arrival time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ClientLatencyCalculation = value
	p.state.ClientLatencyArrivalTime = arrival
}

// ConsumeClientLatencyEcho returns the value to send back as
// "clientLatencyCalculation" on the next outbound State, if one was
// stashed. Each stashed value is only echoed once.
func (p *PingTracker) ConsumeClientLatencyEcho(now time.Time) (value float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.ClientLatencyArrivalTime.IsZero() {
		return 0, false
	}
	processing := now.Sub(p.state.ClientLatencyArrivalTime).Seconds()
	value = p.state.ClientLatencyCalculation + processing
	p.state.ClientLatencyArrivalTime = time.Time{}
	return value, true
}

// ForwardDelay returns the current forward-delay estimate.
func (p *PingTracker) ForwardDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.ForwardDelay
}

// AvgRTT returns the current smoothed round-trip time.
func (p *PingTracker) AvgRTT() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.AvgRTT
}

// Snapshot returns a copy of the tracked ping state.
func (p *PingTracker) Snapshot() types.PingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Schedule runs fn on its own goroutine every interval until ctx is
// cancelled, returning the underlying ticker so callers can inspect it in
// tests. Mirrors the schedule() helper the niketsu worker uses to drive its
// ping loop.
func Schedule(ctx context.Context, interval time.Duration, fn func(now time.Time)) *time.Ticker {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				fn(t)
			}
		}
	}()
	return ticker
}
