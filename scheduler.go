package parrotfwd

import (
	"context"
	"time"

	"github.com/jd3nn1s/parrotfwd/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// loopWindowSize is how many recent loop durations feed the rolling
	// min/max/avg statistics.
	loopWindowSize = 100

	defaultResyncAfter = 3
	defaultStatsEvery  = 5 * time.Second
)

// Stats is a snapshot of the scheduler's counters and rolling loop timing.
type Stats struct {
	StartedAt time.Time
	Cycles    uint64
	Sent      uint64
	Errors    uint64
	Resyncs   uint64
	MinLoop   time.Duration
	MaxLoop   time.Duration
	AvgLoop   time.Duration
}

// Scheduler drives the sample -> encode -> emit pipeline at a fixed interval
// using absolute target times: the next fire time always advances by the
// interval from the previous target, never from "now", so a slow cycle does
// not shift the phase of the ones after it.
type Scheduler struct {
	// ResyncAfter is the number of whole intervals the loop may fall behind
	// before the next target time is re-based on the current time. Without
	// the resync a long stall would be followed by a burst of back-to-back
	// cycles.
	ResyncAfter int

	// StatsEvery is how often a performance summary is logged.
	StatsEvery time.Duration

	interval time.Duration
	sampler  Sampler
	encoder  Encoder
	sink     Sink

	started   time.Time
	cycles    uint64
	sent      uint64
	errs      uint64
	resyncs   uint64
	loops     []time.Duration
	loopPos   int
	errLogged bool

	// to allow testing with an instrumented clock
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewScheduler validates the configuration and returns a scheduler ready to
// Run. interval must be positive and all collaborators non-nil; anything
// else is a construction error, the only fatal failure mode this component
// has.
func NewScheduler(interval time.Duration, sampler Sampler, encoder Encoder, sink Sink) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.Errorf("invalid interval %v", interval)
	}
	if sampler == nil {
		return nil, errors.New("sampler is required")
	}
	if encoder == nil {
		return nil, errors.New("encoder is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	return &Scheduler{
		ResyncAfter: defaultResyncAfter,
		StatsEvery:  defaultStatsEvery,
		interval:    interval,
		sampler:     sampler,
		encoder:     encoder,
		sink:        sink,
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run drives the emission loop until ctx is cancelled. The wait for the next
// target time is the only blocking point and the only point at which
// cancellation is honored: an in-flight cycle always completes. A failing
// cycle is counted and logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.started = s.now()
	next := s.started.Add(s.interval)
	lastStats := s.started

	log.WithFields(log.Fields{
		"interval": s.interval,
		"rate":     1.0 / s.interval.Seconds(),
	}).Info("telemetry scheduler started")

	for {
		if d := next.Sub(s.now()); d > 0 {
			if !s.sleep(ctx, d) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		cycleStart := s.now()
		if err := s.cycle(); err != nil {
			s.errs++
			metrics.CycleErrors.Inc()
			// one log line per stats window, the counters carry the rest
			if !s.errLogged {
				log.WithField("err", err).Error("telemetry cycle failed")
				s.errLogged = true
			}
		} else {
			s.sent++
			metrics.PacketsSent.Inc()
		}
		s.cycles++

		loop := s.now().Sub(cycleStart)
		s.recordLoop(loop)
		metrics.LoopDuration.Observe(loop.Seconds())

		if s.now().Sub(lastStats) >= s.StatsEvery {
			s.logStats()
			s.errLogged = false
			lastStats = s.now()
		}

		next = next.Add(s.interval)
		if behind := s.now().Sub(next); behind > time.Duration(s.ResyncAfter)*s.interval {
			log.WithField("behind", behind).Warn("scheduler fell behind, resyncing")
			next = s.now().Add(s.interval)
			s.resyncs++
			metrics.DriftResyncs.Inc()
		}
	}

	s.logStats()
	log.WithFields(log.Fields{
		"cycles": s.cycles,
		"sent":   s.sent,
		"errors": s.errs,
	}).Info("telemetry scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) cycle() error {
	sample, err := s.sampler.Sample()
	if err != nil {
		return errors.Wrap(err, "sampling")
	}
	pkt, err := s.encoder.Encode(sample)
	if err != nil {
		return errors.Wrap(err, "encoding")
	}
	if err := s.sink.Send(pkt); err != nil {
		return errors.Wrap(err, "emitting")
	}
	return nil
}

func (s *Scheduler) recordLoop(d time.Duration) {
	if len(s.loops) < loopWindowSize {
		s.loops = append(s.loops, d)
		return
	}
	s.loops[s.loopPos] = d
	s.loopPos = (s.loopPos + 1) % loopWindowSize
}

// Stats returns a snapshot of the loop counters. The scheduler owns its
// state without locking: call this from the cycle collaborators or after Run
// has returned.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt: s.started,
		Cycles:    s.cycles,
		Sent:      s.sent,
		Errors:    s.errs,
		Resyncs:   s.resyncs,
	}
	if len(s.loops) == 0 {
		return st
	}
	var sum time.Duration
	st.MinLoop = s.loops[0]
	for _, d := range s.loops {
		sum += d
		if d < st.MinLoop {
			st.MinLoop = d
		}
		if d > st.MaxLoop {
			st.MaxLoop = d
		}
	}
	st.AvgLoop = sum / time.Duration(len(s.loops))
	return st
}

func (s *Scheduler) logStats() {
	st := s.Stats()
	var actual float64
	if elapsed := s.now().Sub(s.started).Seconds(); elapsed > 0 {
		actual = float64(st.Cycles) / elapsed
	}
	log.WithFields(log.Fields{
		"target":  1.0 / s.interval.Seconds(),
		"actual":  actual,
		"avgLoop": st.AvgLoop,
		"minLoop": st.MinLoop,
		"maxLoop": st.MaxLoop,
		"sent":    st.Sent,
		"errors":  st.Errors,
		"resyncs": st.Resyncs,
	}).Info("telemetry performance")
}
