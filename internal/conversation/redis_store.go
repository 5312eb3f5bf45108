package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	conversationKeyPrefix = "support:conv:"
	dedupeKeyPrefix       = "support:dedupe:"
	pendingSetKey         = "support:pending"
	// maxTxRetries bounds optimistic-lock retries under contention.
	maxTxRetries = 25
)

// RedisStore keeps conversations as JSON documents and dedupe entries as
// expiring keys. Writes use WATCH/MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl bounds dedupe entries.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Conversation, error) {
	c, err := s.load(ctx, s.client, key)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *RedisStore) AppendInbound(ctx context.Context, key string, turn Turn) (bool, error) {
	appended := false
	err := s.watch(ctx, key, turn.MessageID, func(tx *redis.Tx, c *Conversation) (bool, error) {
		if turn.MessageID != "" {
			n, err := tx.Exists(ctx, s.dedupeKey(turn.MessageID)).Result()
			if err != nil {
				return false, err
			}
			if n > 0 || c.SentByUs(turn.MessageID) {
				appended = false
				return false, nil
			}
		}
		c.appendTurn(turn)
		appended = true
		return true, nil
	})
	return appended, err
}

func (s *RedisStore) RecordOutbound(ctx context.Context, key string, turn Turn) error {
	return s.watch(ctx, key, turn.MessageID, func(_ *redis.Tx, c *Conversation) (bool, error) {
		c.appendTurn(turn)
		return true, nil
	})
}

func (s *RedisStore) Update(ctx context.Context, key string, fn func(*Conversation) error) error {
	return s.watch(ctx, key, "", func(_ *redis.Tx, c *Conversation) (bool, error) {
		if err := fn(c); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.dedupeKey(messageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) PendingKeys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending conversations: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// watch loads the conversation under WATCH, lets mutate decide whether to
// write, then commits the document and the optional dedupe key together.
func (s *RedisStore) watch(ctx context.Context, key, messageID string, mutate func(*redis.Tx, *Conversation) (bool, error)) error {
	convKey := s.convKey(key)
	keys := []string{convKey}
	if messageID != "" {
		keys = append(keys, s.dedupeKey(messageID))
	}

	txf := func(tx *redis.Tx) error {
		c, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		write, err := mutate(tx, c)
		if err != nil || !write {
			return err
		}
		val, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, convKey, val, 0)
			if messageID != "" {
				pipe.Set(ctx, s.dedupeKey(messageID), key, s.ttl)
			}
			if c.Pending != nil {
				pipe.SAdd(ctx, pendingSetKey, key)
			} else {
				pipe.SRem(ctx, pendingSetKey, key)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("conversation %s: too much write contention", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, cmd getter, key string) (*Conversation, error) {
	val, err := cmd.Get(ctx, s.convKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(key), nil
	}
	if err != nil {
		return nil, err
	}
	var c Conversation
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", key, err)
	}
	if c.Stage == "" {
		c.Stage = StageNew
	}
	return &c, nil
}

func (s *RedisStore) convKey(key string) string {
	return conversationKeyPrefix + key
}

func (s *RedisStore) dedupeKey(id string) string {
	return dedupeKeyPrefix + id
}

var _ Store = (*RedisStore)(nil)
