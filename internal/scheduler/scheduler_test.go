package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"support_router_backend/internal/queue"
	"support_router_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type jobSink struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (s *jobSink) Enqueue(job queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *jobSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func TestWorkerForwardsReminderToQueue(t *testing.T) {
	sink := &jobSink{}
	w := &Worker{enqueuer: sink, log: logger.Nop()}

	task, err := NewReminderTask(ReminderPayload{UserKey: "56912345678", TicketID: "t-1"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := w.handleReminder(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(sink.jobs))
	}
	job := sink.jobs[0]
	if job.Kind != queue.KindReminder || job.Key != "56912345678" || job.TicketID != "t-1" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestWorkerSkipsRetryForBadPayload(t *testing.T) {
	w := &Worker{enqueuer: &jobSink{}, log: logger.Nop()}
	err := w.handleReminder(context.Background(), asynq.NewTask(TaskAwaitingHumanReminder, []byte(`{"userKey":""}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestTimerSchedulerFiresOnce(t *testing.T) {
	sink := &jobSink{}
	s := NewTimerScheduler(sink, logger.Nop())

	if err := s.ScheduleReminder(context.Background(), "u1", "t-1", 10*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("reminder never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if sink.len() != 1 || s.Pending() != 0 {
		t.Fatalf("expected exactly one fired reminder, got %d (pending %d)", sink.len(), s.Pending())
	}
}

func TestTimerSchedulerStopCancelsPending(t *testing.T) {
	sink := &jobSink{}
	s := NewTimerScheduler(sink, logger.Nop())
	_ = s.ScheduleReminder(context.Background(), "u1", "t-1", time.Hour)

	s.Stop()
	if s.Pending() != 0 {
		t.Fatalf("expected no pending reminders after stop")
	}
	_ = s.ScheduleReminder(context.Background(), "u1", "t-2", time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if sink.len() != 0 {
		t.Fatalf("stopped scheduler fired a reminder")
	}
}

func TestRedisClientOptAppliesInsecureTLS(t *testing.T) {
	opt, err := redisClientOpt("rediss://:pw@cache.internal:6380/2", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.DB != 2 || opt.Password != "pw" {
		t.Fatalf("unexpected options %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}

	opt, err = redisClientOpt("redis://localhost:6379/0", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.TLSConfig != nil {
		t.Fatalf("plain redis should not get TLS")
	}
}
