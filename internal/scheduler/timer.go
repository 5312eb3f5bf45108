package scheduler

import (
	"context"
	"sync"
	"time"

	"support_router_backend/internal/queue"
	"support_router_backend/platform/logger"
)

// TimerScheduler keeps reminders in memory. Pending reminders are lost on
// restart.
type TimerScheduler struct {
	mu       sync.Mutex
	timers   map[*time.Timer]struct{}
	stopped  bool
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewTimerScheduler(enqueuer Enqueuer, log *logger.Logger) *TimerScheduler {
	return &TimerScheduler{
		timers:   make(map[*time.Timer]struct{}),
		enqueuer: enqueuer,
		log:      log,
	}
}

func (s *TimerScheduler) ScheduleReminder(_ context.Context, key, ticketID string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		err := s.enqueuer.Enqueue(queue.Job{Kind: queue.KindReminder, Key: key, TicketID: ticketID})
		if err != nil {
			s.log.WithConversation(key).Warn("reminder dropped", "ticketId", ticketID, "error", err)
		}
	})
	s.timers[t] = struct{}{}
	return nil
}

// Pending returns the number of reminders not yet fired.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
		delete(s.timers, t)
	}
}
