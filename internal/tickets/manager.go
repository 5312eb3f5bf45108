package tickets

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"support_router_backend/internal/events"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/logger"

	"golang.org/x/sync/singleflight"
)

// Manager tracks tickets locally and persists them through a Store.
type Manager struct {
	mu        sync.Mutex
	byID      map[string]*Ticket
	openByKey map[string]string

	store Store
	group singleflight.Group
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

// NewManager creates a ticket manager. bus may be nil.
func NewManager(store Store, bus events.Bus, log *logger.Logger) *Manager {
	return &Manager{
		byID:      make(map[string]*Ticket),
		openByKey: make(map[string]string),
		store:     store,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// Hydrate loads OPEN tickets from the store so answers arriving after a
// restart still resolve.
func (m *Manager) Hydrate(ctx context.Context) (int, error) {
	lister, ok := m.store.(OpenLister)
	if !ok {
		return 0, nil
	}
	open, err := lister.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range open {
		t := open[i]
		m.byID[t.ID] = &t
		m.openByKey[t.UserKey] = t.ID
	}
	return len(open), nil
}

// Escalate returns the OPEN ticket for key, creating one if none exists.
// Concurrent calls for the same key share a single store call.
func (m *Manager) Escalate(ctx context.Context, key, question string) (string, error) {
	if id, ok := m.openID(key); ok {
		return id, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if id, ok := m.openID(key); ok {
			return id, nil
		}

		id, err := m.create(ctx, key, question)
		if err != nil {
			return "", err
		}

		t := &Ticket{
			ID:        id,
			UserKey:   key,
			Question:  question,
			Status:    StatusOpen,
			CreatedAt: m.now(),
		}
		m.mu.Lock()
		m.byID[id] = t
		m.openByKey[key] = id
		m.mu.Unlock()

		m.log.WithConversation(key).Info("ticket opened", "ticketId", id)
		if m.bus != nil {
			m.bus.Publish(ctx, events.TicketOpened{
				BaseEvent: events.NewBaseEvent(),
				TicketID:  id,
				UserKey:   key,
				Question:  question,
			})
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// create asks the store for the OPEN ticket of key. The store may still hold
// a ticket open whose answer was applied here but failed to persist; that
// answer is recorded again before a fresh ticket is requested, and the
// answered record is never replaced.
func (m *Manager) create(ctx context.Context, key, question string) (string, error) {
	id, err := m.store.Create(ctx, question, key)
	if err != nil {
		return "", apperr.Transient("ticket store create failed", err)
	}
	answered, ok := m.answered(id)
	if !ok {
		return id, nil
	}

	m.log.WithConversation(key).Warn("store returned an answered ticket as open", "ticketId", id)
	rec, ok := m.store.(AnswerRecorder)
	if !ok {
		return "", apperr.StateConflict("ticket " + id + " is answered but still open in the store")
	}
	if err := rec.MarkAnswered(ctx, id, answered.Answer, *answered.AnsweredAt); err != nil {
		return "", apperr.Transient("ticket answer not persisted yet", err)
	}

	id, err = m.store.Create(ctx, question, key)
	if err != nil {
		return "", apperr.Transient("ticket store create failed", err)
	}
	if _, stale := m.answered(id); stale {
		return "", apperr.StateConflict("ticket " + id + " is answered but still open in the store")
	}
	return id, nil
}

// answered returns the local ticket for id when it is no longer OPEN.
func (m *Manager) answered(id string) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.Status == StatusOpen || t.AnsweredAt == nil {
		return Ticket{}, false
	}
	return *t, true
}

// Resolve applies the first answer for an OPEN ticket. Unknown and already
// answered ids are ignored.
func (m *Manager) Resolve(ctx context.Context, id, answer string) Resolution {
	id = strings.TrimSpace(id)

	m.mu.Lock()
	t, ok := m.byID[id]
	if !ok || t.Status != StatusOpen {
		m.mu.Unlock()
		m.log.Info("ticket answer ignored", "ticketId", id, "known", ok)
		return Resolution{Outcome: Ignored, TicketID: id}
	}
	at := m.now()
	t.Status = StatusAnswered
	t.Answer = answer
	t.AnsweredAt = &at
	if m.openByKey[t.UserKey] == id {
		delete(m.openByKey, t.UserKey)
	}
	res := Resolution{
		Outcome:  Applied,
		TicketID: id,
		UserKey:  t.UserKey,
		Question: t.Question,
		Answer:   answer,
	}
	m.mu.Unlock()

	if rec, ok := m.store.(AnswerRecorder); ok {
		if err := rec.MarkAnswered(ctx, id, answer, at); err != nil {
			m.log.Error("failed to persist ticket answer", "ticketId", id, "error", err)
		}
	}
	if m.bus != nil {
		m.bus.Publish(ctx, events.TicketAnswered{
			BaseEvent: events.NewBaseEvent(),
			TicketID:  id,
			UserKey:   res.UserKey,
			Question:  res.Question,
			Answer:    answer,
		})
	}
	return res
}

// OpenTicket returns the OPEN ticket for key.
func (m *Manager) OpenTicket(key string) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.openByKey[key]
	if !ok {
		return Ticket{}, false
	}
	return *m.byID[id], true
}

// Get returns a ticket by id.
func (m *Manager) Get(id string) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}

// List returns tickets with the given status (all when empty), oldest first.
func (m *Manager) List(status Status) []Ticket {
	m.mu.Lock()
	out := make([]Ticket, 0, len(m.byID))
	for _, t := range m.byID {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) openID(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.openByKey[key]
	return id, ok
}
