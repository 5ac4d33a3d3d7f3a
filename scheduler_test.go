package parrotfwd

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) now() time.Time {
	return c.cur
}

func (c *fakeClock) advance(d time.Duration) {
	c.cur = c.cur.Add(d)
}

type fakeSampler struct {
	calls    int
	failAt   int
	onSample func(call int)
}

func (s *fakeSampler) Sample() (Telemetry, error) {
	s.calls++
	if s.onSample != nil {
		s.onSample(s.calls)
	}
	if s.failAt != 0 && s.calls == s.failAt {
		return Telemetry{}, errors.New("sensor glitch")
	}
	return Telemetry{TimestampUS: uint64(s.calls), Roll: 1, Pitch: 2, Heading: 3}, nil
}

type stubEncoder struct {
	err error
}

func (e stubEncoder) Encode(t Telemetry) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []byte{byte(t.TimestampUS)}, nil
}

type recordingSink struct {
	clock  *fakeClock
	calls  int
	times  []time.Time
	failAt int
	cost   func(call int) time.Duration
	onSend func(call int)
}

func (s *recordingSink) Send(b []byte) error {
	s.calls++
	s.times = append(s.times, s.clock.cur)
	if s.cost != nil {
		s.clock.advance(s.cost(s.calls))
	}
	if s.onSend != nil {
		s.onSend(s.calls)
	}
	if s.failAt != 0 && s.calls == s.failAt {
		return errors.New("socket error")
	}
	return nil
}

func (s *recordingSink) Close() error {
	return nil
}

func newTestScheduler(t *testing.T, interval time.Duration, sampler Sampler, sink Sink, clock *fakeClock) *Scheduler {
	t.Helper()
	s, err := NewScheduler(interval, sampler, stubEncoder{}, sink)
	require.NoError(t, err)
	s.StatsEvery = time.Hour
	s.now = clock.now
	s.sleep = func(ctx context.Context, d time.Duration) bool {
		clock.advance(d)
		return ctx.Err() == nil
	}
	return s
}

func TestNewSchedulerValidation(t *testing.T) {
	sampler := &fakeSampler{}
	sink := &recordingSink{clock: &fakeClock{}}

	_, err := NewScheduler(0, sampler, stubEncoder{}, sink)
	assert.Error(t, err)
	_, err = NewScheduler(-time.Second, sampler, stubEncoder{}, sink)
	assert.Error(t, err)
	_, err = NewScheduler(time.Second, nil, stubEncoder{}, sink)
	assert.Error(t, err)
	_, err = NewScheduler(time.Second, sampler, nil, sink)
	assert.Error(t, err)
	_, err = NewScheduler(time.Second, sampler, stubEncoder{}, nil)
	assert.Error(t, err)

	_, err = NewScheduler(time.Second, sampler, stubEncoder{}, sink)
	assert.NoError(t, err)
}

func TestSchedulerFiresOnAbsoluteTargets(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	start := clock.cur
	interval := 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock}
	sink.onSend = func(call int) {
		if call == 10 {
			cancel()
		}
	}

	s := newTestScheduler(t, interval, &fakeSampler{}, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))

	require.Len(t, sink.times, 10)
	for k, fired := range sink.times {
		assert.Equal(t, start.Add(time.Duration(k+1)*interval), fired, "cycle %d", k)
	}
}

func TestSchedulerSlowCycleKeepsPhase(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	start := clock.cur
	interval := 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock}
	// one cycle body runs for 1.5 intervals
	sink.cost = func(call int) time.Duration {
		if call == 3 {
			return 150 * time.Millisecond
		}
		return 0
	}
	sink.onSend = func(call int) {
		if call == 8 {
			cancel()
		}
	}

	s := newTestScheduler(t, interval, &fakeSampler{}, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))
	require.Len(t, sink.times, 8)

	// never more than one interval off the ideal schedule
	for k, fired := range sink.times {
		target := start.Add(time.Duration(k+1) * interval)
		deviation := fired.Sub(target)
		assert.True(t, deviation >= 0 && deviation < interval,
			"cycle %d fired at %v, target %v", k, fired, target)
	}

	// the late cycle does not shift the phase of the ones after it
	assert.Equal(t, start.Add(450*time.Millisecond), sink.times[3])
	assert.Equal(t, start.Add(500*time.Millisecond), sink.times[4])
	assert.Equal(t, uint64(0), s.Stats().Resyncs)
}

func TestSchedulerResyncsAfterLongStall(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	start := clock.cur
	interval := 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock}
	// first cycle stalls for ten intervals
	sink.cost = func(call int) time.Duration {
		if call == 1 {
			return time.Second
		}
		return 0
	}
	sink.onSend = func(call int) {
		if call == 3 {
			cancel()
		}
	}

	s := newTestScheduler(t, interval, &fakeSampler{}, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))
	require.Len(t, sink.times, 3)

	// no catch-up burst: one resync, then back on a clean phase
	assert.Equal(t, start.Add(100*time.Millisecond), sink.times[0])
	assert.Equal(t, start.Add(1200*time.Millisecond), sink.times[1])
	assert.Equal(t, start.Add(1300*time.Millisecond), sink.times[2])
	assert.Equal(t, uint64(1), s.Stats().Resyncs)
}

func TestSchedulerSamplingFailureDoesNotStopStream(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock}
	sink.onSend = func(call int) {
		if call == 9 {
			cancel()
		}
	}
	sampler := &fakeSampler{failAt: 3}

	s := newTestScheduler(t, 100*time.Millisecond, sampler, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))

	stats := s.Stats()
	assert.Equal(t, uint64(10), stats.Cycles)
	assert.Equal(t, uint64(9), stats.Sent)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestSchedulerSinkFailureDoesNotStopStream(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock, failAt: 2}
	sink.onSend = func(call int) {
		if call == 5 {
			cancel()
		}
	}

	s := newTestScheduler(t, 100*time.Millisecond, &fakeSampler{}, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))

	stats := s.Stats()
	assert.Equal(t, uint64(5), stats.Cycles)
	assert.Equal(t, uint64(4), stats.Sent)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestSchedulerEncodingFailureDoesNotStopStream(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	sampler := &fakeSampler{}
	sampler.onSample = func(call int) {
		if call == 4 {
			cancel()
		}
	}
	sink := &recordingSink{clock: clock}

	s, err := NewScheduler(100*time.Millisecond, sampler, stubEncoder{err: errors.New("bad payload")}, sink)
	require.NoError(t, err)
	s.StatsEvery = time.Hour
	s.now = clock.now
	s.sleep = func(ctx context.Context, d time.Duration) bool {
		clock.advance(d)
		return ctx.Err() == nil
	}

	assert.Equal(t, context.Canceled, s.Run(ctx))
	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Cycles)
	assert.Equal(t, uint64(4), stats.Errors)
	assert.Zero(t, stats.Sent)
	assert.Zero(t, sink.calls)
}

func TestSchedulerLoopStats(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{clock: clock}
	sink.cost = func(call int) time.Duration {
		if call == 2 {
			return 9 * time.Millisecond
		}
		return 5 * time.Millisecond
	}
	sink.onSend = func(call int) {
		if call == 5 {
			cancel()
		}
	}

	s := newTestScheduler(t, 100*time.Millisecond, &fakeSampler{}, sink, clock)
	assert.Equal(t, context.Canceled, s.Run(ctx))

	stats := s.Stats()
	assert.Equal(t, 5*time.Millisecond, stats.MinLoop)
	assert.Equal(t, 9*time.Millisecond, stats.MaxLoop)
	assert.Equal(t, (5*4+9)*time.Millisecond/5, stats.AvgLoop)
}

func TestSchedulerStopsBeforeFirstCycleOnCancelledContext(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{clock: clock}
	s := newTestScheduler(t, 100*time.Millisecond, &fakeSampler{}, sink, clock)

	assert.Equal(t, context.Canceled, s.Run(ctx))
	assert.Zero(t, s.Stats().Cycles)
	assert.Zero(t, sink.calls)
}
