package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduleFires(t *testing.T) {
	s := NewCloseScheduler(zap.NewNop())
	var fired atomic.Int32
	s.Schedule(1, 10*time.Millisecond, func() { fired.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("expected close to fire once, fired %d times", fired.Load())
	}
	if s.Pending(1) {
		t.Fatal("entry must be removed after firing")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := NewCloseScheduler(zap.NewNop())
	var fired atomic.Int32
	s.Schedule(2, 50*time.Millisecond, func() { fired.Add(1) })

	if !s.Cancel(2) {
		t.Fatal("expected a pending close to cancel")
	}
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled close still fired %d times", fired.Load())
	}
	if s.Cancel(2) {
		t.Fatal("second cancel must report nothing pending")
	}
}

func TestScheduleReplacesPending(t *testing.T) {
	s := NewCloseScheduler(zap.NewNop())
	var first, second atomic.Int32
	s.Schedule(3, time.Hour, func() { first.Add(1) })
	s.Schedule(3, 10*time.Millisecond, func() { second.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for second.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("replacement broken: first=%d second=%d", first.Load(), second.Load())
	}
}

func TestStopCancelsAll(t *testing.T) {
	s := NewCloseScheduler(zap.NewNop())
	var fired atomic.Int32
	for id := int64(1); id <= 5; id++ {
		s.Schedule(id, 30*time.Millisecond, func() { fired.Add(1) })
	}
	s.Stop()
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("%d closes fired after Stop", fired.Load())
	}
}
