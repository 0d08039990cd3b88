// Package redisdb keeps each post's comments in a redis hash and signals
// changes over pub/sub, so every subscriber can reload the full snapshot.
package redisdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CommentThreads/internal/feed"
	"CommentThreads/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Storage struct {
	rdb *redis.Client
	log *slog.Logger
	now func() time.Time
}

var _ feed.Feed = (*Storage)(nil)

func New(options redis.Options, log *slog.Logger) *Storage {
	return &Storage{
		rdb: redis.NewClient(&options),
		log: log,
		now: time.Now,
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.redisdb.Ping"
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close redis connection
func (s *Storage) Close() error {
	return s.rdb.Close()
}

func commentsKey(postID string) string {
	return "posts:" + postID + ":comments"
}

func changesChannel(postID string) string {
	return commentsKey(postID) + ":changed"
}

func (s *Storage) Append(ctx context.Context, postID string, c models.Comment) (string, error) {
	const op = "storage.redisdb.Append"

	c.ID = uuid.NewString()
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, commentsKey(postID), c.ID, c)
		pipe.Publish(ctx, changesChannel(postID), c.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: save comment: %w", op, err)
	}

	return c.ID, nil
}

func (s *Storage) Remove(ctx context.Context, postID, commentID string) error {
	const op = "storage.redisdb.Remove"

	n, err := s.rdb.HDel(ctx, commentsKey(postID), commentID).Result()
	if err != nil {
		return fmt.Errorf("%s: delete comment: %w", op, err)
	}
	if n == 0 {
		return nil
	}

	if err := s.rdb.Publish(ctx, changesChannel(postID), commentID).Err(); err != nil {
		return fmt.Errorf("%s: publish change: %w", op, err)
	}

	return nil
}

func (s *Storage) Snapshot(ctx context.Context, postID string) (models.Snapshot, error) {
	const op = "storage.redisdb.Snapshot"

	values, err := s.rdb.HGetAll(ctx, commentsKey(postID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw := make(map[string][]byte, len(values))
	for k, v := range values {
		raw[k] = []byte(v)
	}

	snap, rejected := models.DecodeSnapshot(raw)
	for _, r := range rejected {
		s.log.Warn("quarantined malformed comment", "op", op, "post_id", postID, "comment_id", r.Key, "error", r.Err)
	}

	return snap, nil
}

func (s *Storage) Subscribe(ctx context.Context, postID string, onSnapshot feed.SnapshotFunc) (feed.Subscription, error) {
	const op = "storage.redisdb.Subscribe"

	pubsub := s.rdb.Subscribe(ctx, changesChannel(postID))
	// wait for the confirmation so changes made after Subscribe returns are seen
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pump := feed.StartPump(ctx, func(ctx context.Context) (models.Snapshot, error) {
		return s.Snapshot(ctx, postID)
	}, onSnapshot, s.log)

	sub := &subscription{pubsub: pubsub, pump: pump}

	go func() {
		messages := pubsub.Channel()
		for {
			select {
			case <-pump.Done():
				sub.closePubSub()
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				pump.Notify()
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	pump   *feed.Pump
	once   sync.Once
	err    error
}

func (sub *subscription) Close() error {
	const op = "storage.redisdb.subscription.Close"

	_ = sub.pump.Close()
	if err := sub.closePubSub(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (sub *subscription) closePubSub() error {
	sub.once.Do(func() {
		sub.err = sub.pubsub.Close()
	})
	return sub.err
}
