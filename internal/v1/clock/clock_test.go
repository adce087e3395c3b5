package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordRTTSeedsAverageOnFirstSample(t *testing.T) {
	p := New()
	sentAt := time.Now()
	echoed := NextLatencyCalculation(sentAt)

	p.RecordRTT(sentAt.Add(100*time.Millisecond), echoed, 0)

	snap := p.Snapshot()
	assert.InDelta(t, 100*time.Millisecond, snap.RTT, float64(5*time.Millisecond))
	assert.Equal(t, snap.RTT, snap.AvgRTT)
	assert.Equal(t, snap.AvgRTT/2, snap.ForwardDelay)
}

func TestRecordRTTSmoothsSubsequentSamples(t *testing.T) {
	p := New()
	base := time.Now()

	p.RecordRTT(base.Add(100*time.Millisecond), NextLatencyCalculation(base), 0)
	first := p.AvgRTT()

	base2 := base.Add(time.Second)
	p.RecordRTT(base2.Add(200*time.Millisecond), NextLatencyCalculation(base2), 0)
	second := p.AvgRTT()

	assert.Greater(t, second, first)
	assert.Less(t, second, 200*time.Millisecond)
}

func TestRecordRTTAddsAsymmetryWhenClientRTTIsSmaller(t *testing.T) {
	p := New()
	base := time.Now()
	p.RecordRTT(base.Add(200*time.Millisecond), NextLatencyCalculation(base), 50*time.Millisecond)

	snap := p.Snapshot()
	// fd = avg/2 + (rtt - clientRtt)
	expected := snap.AvgRTT/2 + (snap.RTT - 50*time.Millisecond)
	assert.Equal(t, expected, snap.ForwardDelay)
}

func TestClientLatencyEchoIsConsumedOnce(t *testing.T) {
	p := New()
	now := time.Now()
	p.StashClientLatency(123.5, now)

	v, ok := p.ConsumeClientLatencyEcho(now.Add(10 * time.Millisecond))
	assert.True(t, ok)
	assert.InDelta(t, 123.51, v, 0.01)

	_, ok = p.ConsumeClientLatencyEcho(now.Add(20 * time.Millisecond))
	assert.False(t, ok)
}

func TestScheduleFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 8)
	Schedule(ctx, 10*time.Millisecond, func(now time.Time) {
		select {
		case ticks <- now:
		default:
		}
	})

	select {
	case <-ticks:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one tick")
	}
	cancel()
}
