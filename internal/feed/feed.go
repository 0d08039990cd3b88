// Package feed holds the contract of a remote comment feed and the delivery
// loop the storage backends share.
package feed

import (
	"context"

	"CommentThreads/internal/models"
)

// SnapshotFunc receives the full current snapshot of a post.
type SnapshotFunc func(models.Snapshot)

// Subscription is an owned handle on a live snapshot stream. Close stops
// delivery and may be called more than once. It must not be called from
// inside the SnapshotFunc of the same subscription.
type Subscription interface {
	Close() error
}

// Feed is a keyed, replicated collection of comments scoped per post.
type Feed interface {
	// Subscribe delivers the current snapshot right away and a fresh one after
	// every change. Deliveries of one subscription never overlap.
	Subscribe(ctx context.Context, postID string, onSnapshot SnapshotFunc) (Subscription, error)
	// Append stores the record under a newly issued id and returns that id.
	Append(ctx context.Context, postID string, c models.Comment) (string, error)
	// Remove deletes exactly one record. Removing an absent id is not an error.
	Remove(ctx context.Context, postID, commentID string) error
	// Snapshot reads the current state once.
	Snapshot(ctx context.Context, postID string) (models.Snapshot, error)
}
