package handlers

import (
	"context"
	"log/slog"
	"sync"

	"CommentThreads/internal/models"
)

type listener struct {
	userID string
	fn     func(models.Notice)
}

// NoticeHub routes failure notices to the live sockets open on a post.
type NoticeHub struct {
	log *slog.Logger

	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
}

func NewNoticeHub(log *slog.Logger) *NoticeHub {
	return &NoticeHub{
		log:       log,
		listeners: make(map[string]map[*listener]struct{}),
	}
}

// Listen registers fn for notices on postID addressed to userID. A notice
// without an author goes to every listener of the post. The returned func
// unregisters.
func (h *NoticeHub) Listen(postID, userID string, fn func(models.Notice)) func() {
	l := &listener{userID: userID, fn: fn}

	h.mu.Lock()
	set, ok := h.listeners[postID]
	if !ok {
		set = make(map[*listener]struct{})
		h.listeners[postID] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[postID], l)
			if len(h.listeners[postID]) == 0 {
				delete(h.listeners, postID)
			}
		})
	}
}

// Notify implements gateway.Notifier.
func (h *NoticeHub) Notify(ctx context.Context, n models.Notice) {
	h.mu.Lock()
	var targets []func(models.Notice)
	for l := range h.listeners[n.PostID] {
		if n.AuthorID == "" || l.userID == n.AuthorID {
			targets = append(targets, l.fn)
		}
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		h.log.Info("notice has no listener", "post_id", n.PostID, "author_id", n.AuthorID, "message", n.Message)
		return
	}
	for _, fn := range targets {
		fn(n)
	}
}
