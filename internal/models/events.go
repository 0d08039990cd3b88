package models

import "time"

const (
	EventCommentCreated = "comment.created"
	EventCommentDeleted = "comment.deleted"
	EventCommentFailed  = "comment.failed"
)

// Event describes the outcome of a mutation for downstream consumers
// (notification sidebar, certificate service and the like).
type Event struct {
	Kind      string    `json:"kind"`
	PostID    string    `json:"post_id"`
	CommentID string    `json:"comment_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Notice is a user-visible message about a failed mutation.
type Notice struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id,omitempty"`
	Message  string `json:"message"`
}
