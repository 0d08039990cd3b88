// Package live keeps a materialized thread in step with a post's comment feed.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CommentThreads/internal/feed"
	"CommentThreads/internal/models"
	"CommentThreads/internal/thread"
)

type Subscriber interface {
	Subscribe(ctx context.Context, postID string, onSnapshot feed.SnapshotFunc) (feed.Subscription, error)
}

// UpdateFunc receives every rebuilt thread. err is a structural error from
// materialization; the thread then holds the well-formed part only.
type UpdateFunc func(t models.Thread, err error)

// Watcher owns one feed subscription. Each delivered snapshot replaces the
// previous view entirely; the view is never patched locally.
type Watcher struct {
	postID   string
	log      *slog.Logger
	onUpdate UpdateFunc
	now      func() time.Time

	mu      sync.RWMutex
	current models.Thread
	err     error
	updates int

	sub       feed.Subscription
	stop      context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Watch subscribes to postID and rebuilds the thread on every snapshot.
// The returned watcher must be closed; cancelling ctx closes it too.
// onUpdate runs on the delivery goroutine and must not call Close.
func Watch(ctx context.Context, sub Subscriber, postID string, log *slog.Logger, onUpdate UpdateFunc) (*Watcher, error) {
	const op = "live.Watch"

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		postID:   postID,
		log:      log.With("post_id", postID),
		onUpdate: onUpdate,
		now:      time.Now,
		current:  models.Thread{PostID: postID},
		stop:     cancel,
	}

	s, err := sub.Subscribe(ctx, postID, w.rebuild)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w.sub = s

	go func() {
		<-ctx.Done()
		_ = w.Close()
	}()

	return w, nil
}

func (w *Watcher) rebuild(snap models.Snapshot) {
	const op = "live.Watcher.rebuild"

	t, err := thread.Build(w.postID, snap)
	t.BuiltAt = w.now()
	if err != nil {
		w.log.Warn("structural anomaly in comments", "op", op, "error", err)
	}

	w.mu.Lock()
	w.current = t
	w.err = err
	w.updates++
	w.mu.Unlock()

	w.log.Debug("thread rebuilt", "op", op, "total", t.Total, "visible", t.Visible)

	if w.onUpdate != nil {
		w.onUpdate(t, err)
	}
}

// Current returns the thread built from the latest snapshot.
func (w *Watcher) Current() (models.Thread, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current, w.err
}

// Updates counts the snapshots processed so far.
func (w *Watcher) Updates() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updates
}

func (w *Watcher) PostID() string {
	return w.postID
}

// Close releases the subscription. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.stop()
		if err := w.sub.Close(); err != nil {
			w.closeErr = fmt.Errorf("live.Watcher.Close: %w", err)
		}
	})
	return w.closeErr
}
