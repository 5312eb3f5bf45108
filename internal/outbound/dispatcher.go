// Package outbound sends replies to users and records every self-sent
// message id so the channel's echo of it is never ingested as a new turn.
package outbound

import (
	"context"
	"time"

	"support_router_backend/internal/conversation"
	"support_router_backend/platform/keylock"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/retry"

	"golang.org/x/time/rate"
)

// Sender is the channel-send collaborator.
type Sender interface {
	SendText(ctx context.Context, to, text string) (string, error)
}

// Options tunes the dispatcher.
type Options struct {
	// RPS caps sends per second across all users. Zero disables the limit.
	RPS float64
	// Retry bounds send attempts. A failed send is only retried when
	// Retry.Retryable reports the message was not accepted; without it
	// nothing is resent.
	Retry retry.Policy
}

// Dispatcher implements Send for the pipeline.
type Dispatcher struct {
	sender  Sender
	store   conversation.Store
	locks   *keylock.Map
	limiter *rate.Limiter
	retry   retry.Policy
	log     *logger.Logger
	now     func() time.Time
}

// NewDispatcher wires a dispatcher. locks must be the same map the ingress
// path uses so recording an outbound id and evaluating an inbound id for the
// same key never interleave.
func NewDispatcher(sender Sender, store conversation.Store, locks *keylock.Map, opts Options, log *logger.Logger) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = func(error) bool { return false }
	}
	return &Dispatcher{
		sender:  sender,
		store:   store,
		locks:   locks,
		limiter: limiter,
		retry:   opts.Retry,
		log:     log,
		now:     time.Now,
	}
}

// Send delivers text to the conversation's user and returns the channel
// message id. The send runs without the key's ingress lock; only recording
// the id takes it.
func (d *Dispatcher) Send(ctx context.Context, key, text string) (string, error) {
	var messageID string
	err := retry.Do(ctx, d.retry, func(ctx context.Context) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		id, err := d.sender.SendText(ctx, key, text)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		d.log.WithConversation(key).Warn("dispatch failed", "error", err)
		return "", err
	}

	d.record(context.WithoutCancel(ctx), key, text, messageID)
	return messageID, nil
}

// record stores the outbound turn. An echo ingested while the send was in
// flight is dropped from history by the store and skipped by the pipeline.
func (d *Dispatcher) record(ctx context.Context, key, text, id string) {
	unlock := d.locks.Lock(key)
	defer unlock()

	turn := conversation.Turn{
		Direction: conversation.Outbound,
		At:        d.now(),
		Text:      text,
		MessageID: id,
	}
	// Delivered already, so a recording error is only logged.
	if err := d.store.RecordOutbound(ctx, key, turn); err != nil {
		d.log.WithConversation(key).Error("failed to record outbound message", "messageId", id, "error", err)
	}
}
