package redisdb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"CommentThreads/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// These tests need a running redis, e.g. REDIS_ADDR=localhost:6379.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	s := New(redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestKeys(t *testing.T) {
	if got := commentsKey("p1"); got != "posts:p1:comments" {
		t.Errorf("Expected 'posts:p1:comments', got '%s'", got)
	}
	if got := changesChannel("p1"); got != "posts:p1:comments:changed" {
		t.Errorf("Expected 'posts:p1:comments:changed', got '%s'", got)
	}
}

func TestStorage_AppendSubscribeRemove(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	postID := "test-" + uuid.NewString()
	t.Cleanup(func() { s.rdb.Del(context.Background(), commentsKey(postID)) })

	snaps := make(chan models.Snapshot, 10)
	sub, err := s.Subscribe(ctx, postID, func(snap models.Snapshot) { snaps <- snap })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	wait := func() models.Snapshot {
		select {
		case snap := <-snaps:
			return snap
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for snapshot")
			return nil
		}
	}

	if initial := wait(); len(initial) != 0 {
		t.Fatalf("Expected empty initial snapshot, got %v", initial)
	}

	id, err := s.Append(ctx, postID, models.Comment{Author: "Ann", AuthorID: "u1", Text: "hello", ParentID: models.RootID})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := wait()
	if snap[id].Text != "hello" {
		t.Errorf("Expected appended comment in snapshot, got %v", snap)
	}

	// a malformed value written by another client is kept out of snapshots
	s.rdb.HSet(ctx, commentsKey(postID), "junk", "{oops")
	got, err := s.Snapshot(ctx, postID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := got["junk"]; ok {
		t.Errorf("Expected malformed record to be quarantined")
	}

	if err := s.Remove(ctx, postID, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if after := wait(); len(after) != 0 {
		t.Errorf("Expected empty snapshot after remove, got %v", after)
	}

	if err := s.Remove(ctx, postID, id); err != nil {
		t.Errorf("Expected second remove to be a no-op, got %v", err)
	}
}
