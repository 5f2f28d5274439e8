package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerImmediateThenInterval(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second)
	defer s.StopAll()

	var runs atomic.Int32
	s.Schedule("poll", 40*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}, true)

	time.Sleep(110 * time.Millisecond)
	if got := runs.Load(); got < 3 {
		t.Errorf("expected immediate run plus at least 2 ticks, got %d", got)
	}
}

func TestSchedulerDeferredFirstRun(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second)
	defer s.StopAll()

	var runs atomic.Int32
	s.Schedule("poll", 80*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}, false)

	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("deferred task must not fire before the first interval, got %d runs", got)
	}
}

func TestSchedulerCancelStopsFutureTicks(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second)
	defer s.StopAll()

	var runs atomic.Int32
	cancel := s.Schedule("poll", 50*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}, true)

	time.Sleep(20 * time.Millisecond) // immediate run only
	cancel()
	cancel() // cancelling twice is safe
	before := runs.Load()

	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != before {
		t.Errorf("ticks fired after cancel: %d -> %d", before, got)
	}
}

func TestSchedulerInFlightRunCompletesAfterCancel(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second)

	started := make(chan struct{}, 1)
	var applied atomic.Int32
	cancel := s.Schedule("poll", 200*time.Millisecond, func(ctx context.Context) {
		started <- struct{}{}
		time.Sleep(60 * time.Millisecond) // slow fetch outliving the cancel
		if ctx.Err() == nil {
			applied.Add(1)
		}
	}, true)

	<-started
	cancel()
	s.StopAll() // waits for the in-flight run

	if got := applied.Load(); got != 1 {
		t.Errorf("in-flight result should be applied exactly once, got %d", got)
	}
}

func TestSchedulerRunTimeoutBoundsHungTask(t *testing.T) {
	s := NewScheduler(context.Background(), 30*time.Millisecond)

	done := make(chan struct{})
	s.Schedule("hung", time.Minute, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}, true)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("run context should expire and release the hung task")
	}
	s.StopAll()
}

func TestSchedulerBaseContextStopsLoops(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	s := NewScheduler(base, time.Second)

	var runs atomic.Int32
	s.Schedule("poll", 20*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}, false)

	cancelBase()
	time.Sleep(60 * time.Millisecond)
	if got := runs.Load(); got > 1 {
		t.Errorf("loops should stop with the base context, got %d runs", got)
	}
	s.StopAll()
}
