// Package gateway is the only way comments get written. Reply and Delete
// validate the intent, hand the write to the feed in the background and
// return at once; the feed's next snapshot is what makes the change visible.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"CommentThreads/internal/models"
)

var (
	ErrNoPost     = errors.New("post id is empty")
	ErrEmptyText  = errors.New("reply text is empty")
	ErrNoParent   = errors.New("reply parent id is empty")
	ErrNoComment  = errors.New("comment id is empty")
	ErrNoIdentity = errors.New("no acting identity")
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultAuthor       = "Admin"

	replyFailedMessage  = "Failed to reply to the comment. Try again."
	deleteFailedMessage = "Failed to delete the comment."
)

// Writer is the write side of the remote comment feed.
type Writer interface {
	Append(ctx context.Context, postID string, c models.Comment) (string, error)
	Remove(ctx context.Context, postID, commentID string) error
}

// IdentityProvider yields the acting user of a request.
type IdentityProvider interface {
	Identity(ctx context.Context) (models.Identity, bool)
}

type IdentityFunc func(ctx context.Context) (models.Identity, bool)

func (f IdentityFunc) Identity(ctx context.Context) (models.Identity, bool) {
	return f(ctx)
}

// Publisher forwards mutation outcomes to other services.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Notifier shows a failure to the user who caused it.
type Notifier interface {
	Notify(ctx context.Context, n models.Notice)
}

type Config struct {
	WriteTimeout  time.Duration
	DefaultAuthor string
	Publisher     Publisher
	Notifier      Notifier
}

type Gateway struct {
	writer   Writer
	identity IdentityProvider
	log      *slog.Logger
	cfg      Config
	now      func() time.Time

	wg sync.WaitGroup
}

func New(writer Writer, identity IdentityProvider, log *slog.Logger, cfg Config) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.DefaultAuthor == "" {
		cfg.DefaultAuthor = DefaultAuthor
	}
	return &Gateway{
		writer:   writer,
		identity: identity,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ValidateReply checks a reply intent before anything is written.
func ValidateReply(text, parentID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if strings.TrimSpace(parentID) == "" {
		return ErrNoParent
	}
	return nil
}

// Reply appends a reply under parentID as the acting identity of ctx.
// Invalid intents are logged and dropped; write failures reach the user
// through the notifier.
func (g *Gateway) Reply(ctx context.Context, postID, text, parentID string) {
	const op = "gateway.Reply"
	log := g.log.With("op", op, "post_id", postID, "parent_id", parentID)

	if postID == "" {
		log.Warn("reply rejected", "error", ErrNoPost)
		return
	}
	if err := ValidateReply(text, parentID); err != nil {
		log.Warn("reply rejected", "error", err)
		return
	}
	who, ok := g.identity.Identity(ctx)
	if !ok || who.ID == "" {
		log.Warn("reply rejected", "error", ErrNoIdentity)
		return
	}

	author := who.Name
	if author == "" {
		author = g.cfg.DefaultAuthor
	}
	c := models.Comment{
		Author:    author,
		AuthorID:  who.ID,
		Text:      strings.TrimSpace(text),
		Timestamp: g.now(),
		ParentID:  parentID,
	}

	g.dispatch(ctx, op, func(ctx context.Context) error {
		id, err := g.writer.Append(ctx, postID, c)
		if err != nil {
			g.fail(ctx, log, models.Event{Kind: models.EventCommentFailed, PostID: postID, ParentID: parentID, AuthorID: who.ID}, err, replyFailedMessage)
			return err
		}

		log.Info("reply stored", "comment_id", id)
		g.publish(ctx, log, models.Event{
			Kind:      models.EventCommentCreated,
			PostID:    postID,
			CommentID: id,
			ParentID:  parentID,
			AuthorID:  who.ID,
		})
		return nil
	})
}

// Delete removes exactly one comment. Replies to it stay in the feed.
// Asking the user for confirmation is up to the caller.
func (g *Gateway) Delete(ctx context.Context, postID, commentID string) {
	const op = "gateway.Delete"
	log := g.log.With("op", op, "post_id", postID, "comment_id", commentID)

	if postID == "" {
		log.Warn("delete rejected", "error", ErrNoPost)
		return
	}
	if strings.TrimSpace(commentID) == "" {
		log.Warn("delete rejected", "error", ErrNoComment)
		return
	}

	var actor string
	if who, ok := g.identity.Identity(ctx); ok {
		actor = who.ID
	}

	g.dispatch(ctx, op, func(ctx context.Context) error {
		if err := g.writer.Remove(ctx, postID, commentID); err != nil {
			g.fail(ctx, log, models.Event{Kind: models.EventCommentFailed, PostID: postID, CommentID: commentID, AuthorID: actor}, err, deleteFailedMessage)
			return err
		}

		log.Info("comment removed")
		g.publish(ctx, log, models.Event{
			Kind:      models.EventCommentDeleted,
			PostID:    postID,
			CommentID: commentID,
			AuthorID:  actor,
		})
		return nil
	})
}

// Wait blocks until every dispatched write has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// dispatch runs the write in the background on a context that keeps the
// caller's values but not its cancellation, bounded by the write timeout.
func (g *Gateway) dispatch(ctx context.Context, op string, write func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("write panicked", "op", op, "error", fmt.Sprint(r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.WriteTimeout)
		defer cancel()

		_ = write(ctx)
	}()
}

func (g *Gateway) fail(ctx context.Context, log *slog.Logger, ev models.Event, err error, message string) {
	log.Error("write failed", "error", err)

	ev.Error = err.Error()
	g.publish(ctx, log, ev)

	if g.cfg.Notifier != nil {
		g.cfg.Notifier.Notify(ctx, models.Notice{
			PostID:   ev.PostID,
			AuthorID: ev.AuthorID,
			Message:  message,
		})
	}
}

func (g *Gateway) publish(ctx context.Context, log *slog.Logger, ev models.Event) {
	if g.cfg.Publisher == nil {
		return
	}
	ev.At = g.now()
	if err := g.cfg.Publisher.Publish(ctx, ev); err != nil {
		log.Warn("publishing event failed", "kind", ev.Kind, "error", err)
	}
}
