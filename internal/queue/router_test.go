package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"support_router_backend/internal/conversation"
	"support_router_backend/platform/keylock"
	"support_router_backend/platform/logger"
)

type recorder struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *recorder) add(j Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.jobs...)
}

func newTestRouter(h Handler, opts Options) (*Router, conversation.Store) {
	store := conversation.NewMemoryStore(time.Hour)
	return NewRouter(store, keylock.New(), h, opts, logger.Nop()), store
}

func closeRouter(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSubmitRunsJobsInArrivalOrderPerKey(t *testing.T) {
	rec := &recorder{}
	r, store := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error {
		time.Sleep(time.Millisecond)
		rec.add(job)
		return nil
	}), Options{Workers: 4, MaxPending: 100})

	for i := 0; i < 20; i++ {
		ok, err := r.Submit(context.Background(), Inbound{Key: "u1", MessageID: fmt.Sprintf("m%d", i), Text: fmt.Sprintf("t%d", i), At: time.Now()})
		if err != nil || !ok {
			t.Fatalf("submit %d: ok=%v err=%v", i, ok, err)
		}
	}
	closeAfterIdle(t, r, "u1")

	jobs := rec.snapshot()
	if len(jobs) != 20 {
		t.Fatalf("expected 20 jobs, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.Text != fmt.Sprintf("t%d", i) {
			t.Fatalf("job %d out of order: %q", i, j.Text)
		}
	}

	conv, _ := store.Get(context.Background(), "u1")
	if len(conv.Turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(conv.Turns))
	}
}

func TestSubmitDropsDuplicateMessageIDs(t *testing.T) {
	var calls atomic.Int32
	r, store := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	}), Options{Workers: 1, MaxPending: 10})

	for i := 0; i < 3; i++ {
		ok, err := r.Submit(context.Background(), Inbound{Key: "u1", MessageID: "wamid.1", Text: "hola", At: time.Now()})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if (i == 0) != ok {
			t.Fatalf("attempt %d accepted=%v", i, ok)
		}
	}
	closeAfterIdle(t, r, "u1")

	if calls.Load() != 1 {
		t.Fatalf("expected one job, got %d", calls.Load())
	}
	conv, _ := store.Get(context.Background(), "u1")
	if len(conv.Turns) != 1 {
		t.Fatalf("expected one turn, got %d", len(conv.Turns))
	}
}

func TestDistinctKeysRunInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	r, _ := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error {
		started <- job.Key
		<-release
		return nil
	}), Options{Workers: 2, MaxPending: 10})

	for _, key := range []string{"a", "b"} {
		if _, err := r.Submit(context.Background(), Inbound{Key: key, MessageID: key, Text: "x"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("key %d did not start while the other was blocked", i)
		}
	}
	close(release)
	closeRouter(t, r)
}

func TestOverflowMergesTurnsButKeepsResolutions(t *testing.T) {
	rec := &recorder{}
	gate := make(chan struct{})
	first := make(chan struct{})
	var once sync.Once
	r, _ := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error {
		once.Do(func() {
			close(first)
			<-gate
		})
		rec.add(job)
		return nil
	}), Options{Workers: 1, MaxPending: 1})

	submit := func(id string) {
		if _, err := r.Submit(context.Background(), Inbound{Key: "u1", MessageID: id, Text: id}); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	submit("m1")
	<-first
	submit("m2")
	if err := r.Enqueue(Job{Kind: KindResolution, Key: "u1", TicketID: "t1", Answer: "a"}); err != nil {
		t.Fatalf("enqueue resolution: %v", err)
	}
	submit("m3")
	submit("m4")
	close(gate)
	closeAfterIdle(t, r, "u1")

	jobs := rec.snapshot()
	if len(jobs) != 4 {
		t.Fatalf("expected 4 jobs, got %d: %+v", len(jobs), jobs)
	}
	if jobs[0].Text != "m1" {
		t.Fatalf("first job: %q", jobs[0].Text)
	}
	if jobs[1].Text != "m2" || jobs[1].Merged != 0 {
		t.Fatalf("turn queued before the resolution was merged past it: %+v", jobs[1])
	}
	if jobs[2].Kind != KindResolution {
		t.Fatalf("resolution job was superseded or reordered: %+v", jobs[2])
	}
	if jobs[3].Text != "m3\nm4" || jobs[3].Merged != 1 || len(jobs[3].MessageIDs) != 2 {
		t.Fatalf("merged turn: %+v", jobs[3])
	}
}

func TestSupersedeMergesOnlyAdjacentTurns(t *testing.T) {
	mb := &mailbox{pending: []Job{
		{Kind: KindTurn, Text: "a", MessageIDs: []string{"a"}},
		{Kind: KindReminder, TicketID: "t1"},
		{Kind: KindTurn, Text: "b", MessageIDs: []string{"b"}},
		{Kind: KindTurn, Text: "c", MessageIDs: []string{"c"}},
		{Kind: KindTurn, Text: "d", MessageIDs: []string{"d"}},
	}}

	if merged := supersede(mb, 1); merged != 2 {
		t.Fatalf("expected 2 merges, got %d", merged)
	}
	if len(mb.pending) != 3 {
		t.Fatalf("unexpected mailbox %+v", mb.pending)
	}
	if mb.pending[0].Text != "a" || mb.pending[1].Kind != KindReminder {
		t.Fatalf("turn before the reminder must stay in place: %+v", mb.pending)
	}
	if last := mb.pending[2]; last.Text != "b\nc\nd" || len(last.MessageIDs) != 3 || last.Merged != 2 {
		t.Fatalf("trailing turns not merged: %+v", last)
	}
}

func TestPanickingJobDoesNotStopKey(t *testing.T) {
	rec := &recorder{}
	r, _ := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error {
		if job.Text == "boom" {
			panic("boom")
		}
		rec.add(job)
		return nil
	}), Options{Workers: 1, MaxPending: 10})

	_, _ = r.Submit(context.Background(), Inbound{Key: "u1", MessageID: "1", Text: "boom"})
	_, _ = r.Submit(context.Background(), Inbound{Key: "u1", MessageID: "2", Text: "ok"})
	closeAfterIdle(t, r, "u1")

	if jobs := rec.snapshot(); len(jobs) != 1 || jobs[0].Text != "ok" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestSubmitAfterCloseIsTransient(t *testing.T) {
	r, _ := newTestRouter(HandlerFunc(func(ctx context.Context, job Job) error { return nil }), Options{})
	if !r.Accepting() {
		t.Fatalf("new router should accept work")
	}
	closeRouter(t, r)
	if r.Accepting() {
		t.Fatalf("closed router still accepting")
	}

	if _, err := r.Submit(context.Background(), Inbound{Key: "u1", MessageID: "1", Text: "x"}); err == nil {
		t.Fatalf("expected error after close")
	}
}

// closeAfterIdle waits for the key's mailbox to empty before closing, since
// Close drops jobs that have not started.
func closeAfterIdle(t *testing.T, r *Router, key string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		r.mu.Lock()
		_, busy := r.mailboxes[key]
		r.mu.Unlock()
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mailbox for %s never drained", key)
		}
		time.Sleep(5 * time.Millisecond)
	}
	closeRouter(t, r)
}
