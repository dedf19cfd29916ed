package service

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// TickFunc runs one simulation step
type TickFunc func()

// Scheduler drives a TickFunc from a periodic clock. Ticks run one at a time
// on the scheduler's goroutine; a tick that overruns the interval delays the
// next one rather than overlapping it. Stopping leaves all state as it is.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	tick     TickFunc
	hooks    []func(count uint64)
	logger   *zap.Logger

	stop    chan struct{}
	done    chan struct{}
	running bool
	count   uint64
}

// NewScheduler creates a stopped scheduler. A nil clk uses the wall clock.
func NewScheduler(clk clock.Clock, interval time.Duration, tick TickFunc, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:    clk,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// OnTick registers fn to run after every tick with the running tick count.
// Register hooks before Start.
func (s *Scheduler) OnTick(fn func(count uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Start begins ticking until Stop is called or ctx is done.
// It returns false if the scheduler was already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.startLocked(ctx)
	return true
}

// Stop halts ticking and waits for an in-flight tick to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	done := s.stopLocked()
	s.mu.Unlock()

	<-done
	s.logger.Info("simulation stopped")
}

// Toggle stops a running scheduler or starts a stopped one, returning
// whether it is running afterwards. Concurrent toggles alternate.
func (s *Scheduler) Toggle(ctx context.Context) bool {
	s.mu.Lock()
	if !s.running {
		s.startLocked(ctx)
		s.mu.Unlock()
		return true
	}
	done := s.stopLocked()
	s.mu.Unlock()

	<-done
	s.logger.Info("simulation stopped")
	return false
}

func (s *Scheduler) startLocked(ctx context.Context) {
	// The ticker is created before the loop starts so no tick is lost
	// between Start returning and the goroutine being scheduled.
	ticker := s.clock.Ticker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	hooks := append([]func(uint64){}, s.hooks...)

	go s.loop(ctx, ticker, s.stop, s.done, hooks)

	s.logger.Info("simulation started", zap.Duration("interval", s.interval))
}

// stopLocked signals the loop and returns the channel closed when it exits
func (s *Scheduler) stopLocked() chan struct{} {
	close(s.stop)
	s.running = false
	return s.done
}

// Running reports whether the scheduler is ticking
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Count returns the number of ticks run since creation
func (s *Scheduler) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Interval returns the tick period
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, stop, done chan struct{}, hooks []func(uint64)) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			// A stop may already have handed the scheduler to a newer loop
			if s.done == done {
				s.running = false
			}
			s.mu.Unlock()
			s.logger.Info("simulation loop exiting", zap.Error(ctx.Err()))
			return
		case <-stop:
			return
		case <-ticker.C:
			s.tick()

			s.mu.Lock()
			s.count++
			count := s.count
			s.mu.Unlock()

			for _, hook := range hooks {
				hook(count)
			}
		}
	}
}
