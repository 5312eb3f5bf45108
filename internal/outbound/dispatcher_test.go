package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"support_router_backend/internal/conversation"
	"support_router_backend/internal/queue"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/keylock"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/retry"
)

var errNotSent = errors.New("not accepted")

type fakeSender struct {
	mu    sync.Mutex
	fails []error
	sent  []string
	calls int
}

func (f *fakeSender) SendText(_ context.Context, _ string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.fails) > 0 {
		err := f.fails[0]
		f.fails = f.fails[1:]
		return "", err
	}
	f.sent = append(f.sent, text)
	return fmt.Sprintf("wamid.out.%d", len(f.sent)), nil
}

func newDispatcher(sender Sender, store conversation.Store) *Dispatcher {
	return NewDispatcher(sender, store, keylock.New(), Options{
		Retry: retry.Policy{
			Attempts:  3,
			BaseDelay: time.Millisecond,
			Retryable: func(err error) bool { return errors.Is(err, errNotSent) },
		},
	}, logger.Nop())
}

func TestSendRecordsOutboundIdBeforeReturning(t *testing.T) {
	store := conversation.NewMemoryStore(time.Hour)
	d := newDispatcher(&fakeSender{}, store)
	ctx := context.Background()

	id, err := d.Send(ctx, "569", "hola")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	seen, _ := store.Seen(ctx, id)
	if !seen {
		t.Fatalf("outbound id %s not recorded", id)
	}
	ok, _ := store.AppendInbound(ctx, "569", conversation.Turn{Direction: conversation.Inbound, MessageID: id})
	if ok {
		t.Fatalf("echo of outbound id was ingested")
	}
}

func TestRapidSendReceiveCyclesNeverIngestOwnIds(t *testing.T) {
	store := conversation.NewMemoryStore(time.Hour)
	d := newDispatcher(&fakeSender{}, store)
	ctx := context.Background()

	ingested := 0
	for i := 0; i < 50; i++ {
		id, err := d.Send(ctx, "569", "ping")
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if ok, _ := store.AppendInbound(ctx, "569", conversation.Turn{Direction: conversation.Inbound, MessageID: id}); ok {
			ingested++
		}
	}
	if ingested != 0 {
		t.Fatalf("expected 0 bot-originated ingests, got %d", ingested)
	}
}

func TestSendRetriesFailuresThatWereNotSent(t *testing.T) {
	sender := &fakeSender{fails: []error{apperr.Transient("429", errNotSent)}}
	d := newDispatcher(sender, conversation.NewMemoryStore(time.Hour))

	if _, err := d.Send(context.Background(), "569", "hola"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one delivered message, got %d", len(sender.sent))
	}
}

func TestSendDoesNotRetryInvalidRecipient(t *testing.T) {
	sender := &fakeSender{fails: []error{apperr.Validation("invalid recipient")}}
	store := conversation.NewMemoryStore(time.Hour)
	d := newDispatcher(sender, store)

	_, err := d.Send(context.Background(), "569", "hola")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	c, _ := store.Get(context.Background(), "569")
	if len(c.Turns) != 0 {
		t.Fatalf("failed send must not append a turn")
	}
}

func TestSendDoesNotResendAmbiguousFailure(t *testing.T) {
	sender := &fakeSender{fails: []error{apperr.Transient("whatsapp request failed", context.DeadlineExceeded)}}
	store := conversation.NewMemoryStore(time.Hour)
	d := newDispatcher(sender, store)

	_, err := d.Send(context.Background(), "569", "hola")
	if !apperr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("a send that may have been delivered was repeated %d times", sender.calls)
	}
}

func TestSendWithoutRetryableNeverResends(t *testing.T) {
	sender := &fakeSender{fails: []error{apperr.Transient("429", errNotSent)}}
	d := NewDispatcher(sender, conversation.NewMemoryStore(time.Hour), keylock.New(), Options{
		Retry: retry.Policy{Attempts: 3, BaseDelay: time.Millisecond},
	}, logger.Nop())

	if _, err := d.Send(context.Background(), "569", "hola"); err == nil {
		t.Fatalf("expected the failure to surface")
	}
	if sender.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", sender.calls)
	}
}

type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) SendText(ctx context.Context, _ string, _ string) (string, error) {
	close(b.started)
	select {
	case <-b.release:
		return "wamid.out.slow", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSlowSendDoesNotBlockIngress(t *testing.T) {
	store := conversation.NewMemoryStore(time.Hour)
	locks := keylock.New()
	sender := &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(sender, store, locks, Options{}, logger.Nop())
	router := queue.NewRouter(store, locks, queue.HandlerFunc(func(context.Context, queue.Job) error { return nil }), queue.Options{}, logger.Nop())
	defer func() { _ = router.Close(context.Background()) }()

	sent := make(chan error, 1)
	go func() {
		_, err := d.Send(context.Background(), "569", "respuesta")
		sent <- err
	}()
	<-sender.started

	submitted := make(chan error, 1)
	go func() {
		_, err := router.Submit(context.Background(), queue.Inbound{Key: "569", MessageID: "wamid.in.1", Text: "hola", At: time.Now()})
		submitted <- err
	}()
	select {
	case err := <-submitted:
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound submit blocked behind an in-flight send")
	}

	close(sender.release)
	if err := <-sent; err != nil {
		t.Fatalf("send: %v", err)
	}
	c, _ := store.Get(context.Background(), "569")
	if !c.SentByUs("wamid.out.slow") || len(c.Turns) != 2 {
		t.Fatalf("expected inbound and outbound turns, got %+v", c.Turns)
	}
}
