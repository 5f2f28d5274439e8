package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTaskTimeout bounds a single task run so a hung upstream request
// cannot block the next scheduled tick.
const DefaultTaskTimeout = 10 * time.Second

// Scheduler runs independent fixed-rate polling loops. Each tick fires on
// schedule regardless of how long the previous run took; runs get their own
// bounded context. Cancelling a task stops future firings but lets an
// in-flight run finish and write its result.
type Scheduler struct {
	base    context.Context
	timeout time.Duration

	mu     sync.Mutex
	tasks  map[string]context.CancelFunc
	runs   sync.WaitGroup
	closed bool
}

func NewScheduler(base context.Context, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Scheduler{
		base:    base,
		timeout: timeout,
		tasks:   make(map[string]context.CancelFunc),
	}
}

// Schedule starts a loop firing fn every interval, once immediately first
// when immediate is set. The returned cancel is idempotent. Scheduling a
// taskID that is already running replaces the old loop.
func (s *Scheduler) Schedule(taskID string, interval time.Duration, fn func(context.Context), immediate bool) context.CancelFunc {
	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return cancel
	}
	if prev, ok := s.tasks[taskID]; ok {
		prev()
	}
	s.tasks[taskID] = cancel
	s.mu.Unlock()

	go s.loop(loopCtx, taskID, interval, fn, immediate)

	log.Debug().Str("task", taskID).Dur("interval", interval).Bool("immediate", immediate).Msg("task scheduled")
	return cancel
}

func (s *Scheduler) loop(loopCtx context.Context, taskID string, interval time.Duration, fn func(context.Context), immediate bool) {
	if immediate {
		s.fire(taskID, fn)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-s.base.Done():
			return
		case <-ticker.C:
			s.fire(taskID, fn)
		}
	}
}

// fire runs one invocation in its own goroutine so a slow run never delays
// the ticker. The run context derives from the scheduler's base, not from
// the task's cancel: a cancelled task's in-flight run may still complete
// its write, it just will not be rescheduled.
func (s *Scheduler) fire(taskID string, fn func(context.Context)) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		ctx, cancel := context.WithTimeout(s.base, s.timeout)
		defer cancel()

		started := time.Now()
		fn(ctx)
		if err := ctx.Err(); err == context.DeadlineExceeded {
			log.Warn().Str("task", taskID).Dur("elapsed", time.Since(started)).Msg("task run timed out")
		}
	}()
}

// StopAll cancels every task and waits for in-flight runs to drain.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.tasks))
	for _, c := range s.tasks {
		cancels = append(cancels, c)
	}
	s.tasks = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.runs.Wait()
}
