// Package memory is an in-process comment feed. It backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CommentThreads/internal/feed"
	"CommentThreads/internal/models"

	"github.com/google/uuid"
)

type Storage struct {
	mu    sync.Mutex
	log   *slog.Logger
	posts map[string]models.Snapshot
	subs  map[string]map[*subscription]struct{}
	now   func() time.Time
}

var _ feed.Feed = (*Storage)(nil)

func New(log *slog.Logger) *Storage {
	return &Storage{
		log:   log,
		posts: make(map[string]models.Snapshot),
		subs:  make(map[string]map[*subscription]struct{}),
		now:   time.Now,
	}
}

// Seed stores records as they are, keeping their ids. Meant for fixtures.
func (s *Storage) Seed(postID string, comments ...models.Comment) {
	s.mu.Lock()
	post := s.post(postID)
	for _, c := range comments {
		post[c.ID] = c
	}
	s.mu.Unlock()

	s.notify(postID)
}

func (s *Storage) Snapshot(ctx context.Context, postID string) (models.Snapshot, error) {
	const op = "storage.memory.Snapshot"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.posts[postID].Clone(), nil
}

func (s *Storage) Append(ctx context.Context, postID string, c models.Comment) (string, error) {
	const op = "storage.memory.Append"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	c.ID = uuid.NewString()
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}

	s.mu.Lock()
	s.post(postID)[c.ID] = c
	s.mu.Unlock()

	s.notify(postID)

	return c.ID, nil
}

func (s *Storage) Remove(ctx context.Context, postID, commentID string) error {
	const op = "storage.memory.Remove"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	_, ok := s.posts[postID][commentID]
	delete(s.posts[postID], commentID)
	s.mu.Unlock()

	if ok {
		s.notify(postID)
	}

	return nil
}

func (s *Storage) Subscribe(ctx context.Context, postID string, onSnapshot feed.SnapshotFunc) (feed.Subscription, error) {
	const op = "storage.memory.Subscribe"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &subscription{storage: s, postID: postID}

	// registered under the lock so no change slips between the first load
	// and the subscriber becoming visible to notify
	s.mu.Lock()
	sub.pump = feed.StartPump(ctx, func(ctx context.Context) (models.Snapshot, error) {
		return s.Snapshot(ctx, postID)
	}, onSnapshot, s.log)
	if s.subs[postID] == nil {
		s.subs[postID] = make(map[*subscription]struct{})
	}
	s.subs[postID][sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-sub.pump.Done()
		sub.unregister()
	}()

	return sub, nil
}

// Subscribers reports how many live subscriptions a post has.
func (s *Storage) Subscribers(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[postID])
}

func (s *Storage) post(postID string) models.Snapshot {
	post, ok := s.posts[postID]
	if !ok {
		post = make(models.Snapshot)
		s.posts[postID] = post
	}
	return post
}

func (s *Storage) notify(postID string) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs[postID]))
	for sub := range s.subs[postID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.pump.Notify()
	}
}

type subscription struct {
	storage *Storage
	postID  string
	pump    *feed.Pump
	once    sync.Once
}

func (sub *subscription) Close() error {
	err := sub.pump.Close()
	sub.unregister()
	return err
}

func (sub *subscription) unregister() {
	sub.once.Do(func() {
		sub.storage.mu.Lock()
		defer sub.storage.mu.Unlock()

		delete(sub.storage.subs[sub.postID], sub)
		if len(sub.storage.subs[sub.postID]) == 0 {
			delete(sub.storage.subs, sub.postID)
		}
	})
}
