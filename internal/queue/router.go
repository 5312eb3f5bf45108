package queue

import (
	"context"
	"fmt"
	"sync"

	"support_router_backend/internal/conversation"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/keylock"
	"support_router_backend/platform/logger"

	"golang.org/x/sync/semaphore"
)

// Options tunes the router.
type Options struct {
	// Workers bounds how many keys are processed at once.
	Workers int
	// MaxPending bounds queued turn jobs per key; adjacent older ones are
	// merged into the newer when exceeded.
	MaxPending int
}

type mailbox struct {
	pending []Job
}

// Router owns one mailbox per key with at most one drainer goroutine each.
type Router struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	closed    bool

	store      conversation.Store
	locks      *keylock.Map
	handler    Handler
	sem        *semaphore.Weighted
	maxPending int
	log        *logger.Logger

	stopCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewRouter creates a router. locks must be shared with the outbound
// dispatcher.
func NewRouter(store conversation.Store, locks *keylock.Map, handler Handler, opts Options, log *logger.Logger) *Router {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPending < 1 {
		opts.MaxPending = 1
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Router{
		mailboxes:  make(map[string]*mailbox),
		store:      store,
		locks:      locks,
		handler:    handler,
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		maxPending: opts.MaxPending,
		log:        log,
		stopCtx:    stopCtx,
		stop:       stop,
	}
}

// SetHandler replaces the job handler. It must be called before the first job.
func (r *Router) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Submit dedupes and appends msg to the conversation, then queues a turn
// job. Both happen under the key's lock so history order equals queue order.
// It returns false when the message id was already seen.
func (r *Router) Submit(ctx context.Context, msg Inbound) (bool, error) {
	if r.isClosed() {
		return false, apperr.Transient("queue is shutting down", nil)
	}

	unlock := r.locks.Lock(msg.Key)
	defer unlock()

	appended, err := r.store.AppendInbound(ctx, msg.Key, conversation.Turn{
		Direction: conversation.Inbound,
		At:        msg.At,
		Text:      msg.Text,
		MessageID: msg.MessageID,
	})
	if err != nil {
		return false, fmt.Errorf("append inbound turn: %w", err)
	}
	if !appended {
		return false, nil
	}

	var ids []string
	if msg.MessageID != "" {
		ids = []string{msg.MessageID}
	}
	return true, r.Enqueue(Job{
		Kind:       KindTurn,
		Key:        msg.Key,
		Text:       msg.Text,
		MessageIDs: ids,
		At:         msg.At,
	})
}

// Enqueue queues job for its key.
func (r *Router) Enqueue(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return apperr.Transient("queue is shutting down", nil)
	}

	mb, running := r.mailboxes[job.Key]
	if !running {
		mb = &mailbox{}
		r.mailboxes[job.Key] = mb
	}
	mb.pending = append(mb.pending, job)
	if merged := supersede(mb, r.maxPending); merged > 0 {
		r.log.WithConversation(job.Key).Info("superseded pending turns", "merged", merged)
	}

	if !running {
		r.wg.Add(1)
		go r.drain(job.Key, mb)
	}
	return nil
}

// Pending returns the number of queued jobs for key, excluding a running one.
func (r *Router) Pending(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mb, ok := r.mailboxes[key]; ok {
		return len(mb.pending)
	}
	return 0
}

// Close stops starting new jobs and waits for running ones to finish or for
// ctx to expire. Jobs still queued are dropped.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) drain(key string, mb *mailbox) {
	defer r.wg.Done()
	log := r.log.WithConversation(key)

	for {
		r.mu.Lock()
		if len(mb.pending) == 0 {
			delete(r.mailboxes, key)
			r.mu.Unlock()
			return
		}
		job := mb.pending[0]
		mb.pending = mb.pending[1:]
		handler := r.handler
		r.mu.Unlock()

		if err := r.sem.Acquire(r.stopCtx, 1); err != nil {
			r.mu.Lock()
			dropped := len(mb.pending) + 1
			delete(r.mailboxes, key)
			r.mu.Unlock()
			log.Warn("queue stopped with pending jobs", "dropped", dropped)
			return
		}
		r.run(handler, job, log)
		r.sem.Release(1)
	}
}

func (r *Router) run(handler Handler, job Job, log *logger.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("job panicked", "kind", job.Kind.String(), "panic", rec)
		}
	}()

	ctx := context.WithValue(context.Background(), logger.ConversationKey, job.Key)
	if err := handler.Handle(ctx, job); err != nil {
		log.Error("job failed", "kind", job.Kind.String(), "error", err)
	}
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Accepting reports whether Submit and Enqueue still take new work.
func (r *Router) Accepting() bool {
	return !r.isClosed()
}

// supersede merges the oldest pair of adjacent turn jobs into the newer one
// until at most limit turn jobs remain. A turn is never merged across
// another kind of job, so its text cannot move past a resolution or a
// reminder queued after it. When no adjacent pair is left the mailbox keeps
// more than limit turns.
func supersede(mb *mailbox, limit int) int {
	merged := 0
	for countTurns(mb.pending) > limit {
		oldest := -1
		for i := 0; i+1 < len(mb.pending); i++ {
			if mb.pending[i].Supersedable() && mb.pending[i+1].Supersedable() {
				oldest = i
				break
			}
		}
		if oldest < 0 {
			return merged
		}

		older := mb.pending[oldest]
		newer := mb.pending[oldest+1]
		newer.Text = older.Text + "\n" + newer.Text
		newer.MessageIDs = append(append([]string(nil), older.MessageIDs...), newer.MessageIDs...)
		newer.Merged += older.Merged + 1
		mb.pending[oldest+1] = newer
		mb.pending = append(mb.pending[:oldest], mb.pending[oldest+1:]...)
		merged++
	}
	return merged
}

func countTurns(jobs []Job) int {
	n := 0
	for _, j := range jobs {
		if j.Supersedable() {
			n++
		}
	}
	return n
}
