package knowledge

import (
	"context"
	"sync"
	"time"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/retry"
)

// Updater writes resolved human answers back into the knowledge store.
type Updater struct {
	store    Store
	archiver Archiver
	policy   retry.Policy
	log      *logger.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewUpdater creates an updater. archiver may be nil.
func NewUpdater(store Store, archiver Archiver, policy retry.Policy, log *logger.Logger) *Updater {
	return &Updater{
		store:    store,
		archiver: archiver,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// WriteBack stores the pair in the background. It never blocks the caller
// and never reports failure to it; exhausted retries are logged.
func (u *Updater) WriteBack(ctx context.Context, question, answer string) {
	ctx = context.WithoutCancel(ctx)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		if _, err := u.write(ctx, question, answer, SourceHumanSupport); err != nil {
			u.log.Error("knowledge write-back failed", "question", question, "error", err)
		}
	}()
}

// Add stores an operator-supplied pair and returns its document id.
func (u *Updater) Add(ctx context.Context, question, answer string) (string, error) {
	return u.write(ctx, question, answer, SourceOperator)
}

// Wait blocks until in-flight write-backs finish.
func (u *Updater) Wait() {
	u.wg.Wait()
}

func (u *Updater) write(ctx context.Context, question, answer, source string) (string, error) {
	var id string
	err := retry.Do(ctx, u.policy, func(ctx context.Context) error {
		stored, err := u.store.Write(ctx, question, answer)
		if err != nil {
			if apperr.GetKind(err) == apperr.KindUnknown {
				return apperr.Transient("knowledge write failed", err)
			}
			return err
		}
		id = stored
		return nil
	})
	if err != nil {
		return "", err
	}
	u.log.Info("knowledge document stored", "id", id, "source", source)

	if u.archiver != nil {
		doc := Document{
			ID:        id,
			Question:  question,
			Answer:    answer,
			Source:    source,
			DateAdded: u.now().UTC(),
		}
		if err := u.archiver.Archive(ctx, doc); err != nil {
			u.log.Warn("knowledge archive failed", "id", id, "error", err)
		}
	}
	return id, nil
}
