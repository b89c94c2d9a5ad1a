// Package worker hosts background actions that must not block the event
// handlers that request them.
package worker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CloseScheduler runs delayed ticket closes. Each pending close is a timer
// keyed by external user id, so a suspended close never blocks relays for
// other tickets and never holds a directory lock while waiting.
type CloseScheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewCloseScheduler constructs an empty scheduler.
func NewCloseScheduler(logger *zap.Logger) *CloseScheduler {
	return &CloseScheduler{
		logger: logger,
		timers: make(map[int64]*time.Timer),
	}
}

// Schedule arms a close for the user after delay. A close already pending
// for the same user is replaced.
func (s *CloseScheduler) Schedule(userID int64, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[userID]; ok {
		existing.Stop()
		s.logger.Info("pending close replaced", zap.Int64("user_id", userID))
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[userID] != timer {
			// Cancelled or replaced while the timer was firing.
			s.mu.Unlock()
			return
		}
		delete(s.timers, userID)
		s.mu.Unlock()
		fn()
	})
	s.timers[userID] = timer
}

// Cancel drops a pending close. Returns whether one was pending.
func (s *CloseScheduler) Cancel(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[userID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, userID)
	return true
}

// Pending reports whether a close is scheduled for the user.
func (s *CloseScheduler) Pending(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[userID]
	return ok
}

// Stop cancels every pending close. Used at shutdown.
func (s *CloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
