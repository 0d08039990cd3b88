package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"CommentThreads/internal/gateway"
	"CommentThreads/internal/models"
	"CommentThreads/internal/thread"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type Snapshotter interface {
	Snapshot(ctx context.Context, postID string) (models.Snapshot, error)
}

// CommentWriter is the fire-and-forget mutation surface.
type CommentWriter interface {
	Reply(ctx context.Context, postID, text, parentID string)
	Delete(ctx context.Context, postID, commentID string)
}

type IdentityFunc func(ctx context.Context) (models.Identity, bool)

type createCommentRequest struct {
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
}

type getCommentsResponse struct {
	PostID   string        `json:"post_id"`
	Comments []models.Node `json:"comments"`
	Total    int           `json:"total"`
	Visible  int           `json:"visible"`
	Response `json:"response"`
}

type Response struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	respond(w, r, status, Response{Status: status, Error: err.Error()})
}

// GetComments materializes the current snapshot of a post. A structural
// anomaly is reported next to the well-formed part of the thread.
func GetComments(log *slog.Logger, s Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetComments"
		postID := chi.URLParam(r, "postID")
		log := log.With("op", op, "post_id", postID)

		snap, err := s.Snapshot(r.Context(), postID)
		if err != nil {
			log.Error("snapshot error", "error", err)
			fail(w, r, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		t, err := thread.Build(postID, snap)
		resp := getCommentsResponse{
			PostID:   postID,
			Comments: t.Comments,
			Total:    t.Total,
			Visible:  t.Visible,
			Response: Response{Status: http.StatusOK},
		}
		if resp.Comments == nil {
			resp.Comments = []models.Node{}
		}
		if err != nil {
			log.Warn("structural anomaly in comments", "error", err)
			resp.Error = err.Error()
		}

		respond(w, r, http.StatusOK, resp)
	}
}

// CreateComment accepts a reply intent. The write happens in the background;
// the reply shows up with the feed's next snapshot.
func CreateComment(log *slog.Logger, cw CommentWriter, identity IdentityFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateComment"
		postID := chi.URLParam(r, "postID")
		log := log.With("op", op, "post_id", postID)

		if _, ok := identity(r.Context()); !ok {
			fail(w, r, http.StatusUnauthorized, gateway.ErrNoIdentity)
			return
		}

		var req createCommentRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Warn("json decode error", "error", err)
			fail(w, r, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
		if strings.TrimSpace(req.ParentID) == "" {
			req.ParentID = models.RootID
		}
		if err := gateway.ValidateReply(req.Text, req.ParentID); err != nil {
			fail(w, r, http.StatusBadRequest, err)
			return
		}

		cw.Reply(r.Context(), postID, req.Text, req.ParentID)
		respond(w, r, http.StatusAccepted, Response{Status: http.StatusAccepted})
	}
}

// DeleteComment removes one comment once the caller confirmed it with
// ?confirm=true. Replies to it are left alone.
func DeleteComment(log *slog.Logger, cw CommentWriter, identity IdentityFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteComment"
		postID := chi.URLParam(r, "postID")
		commentID := chi.URLParam(r, "commentID")

		if _, ok := identity(r.Context()); !ok {
			fail(w, r, http.StatusUnauthorized, gateway.ErrNoIdentity)
			return
		}
		if strings.TrimSpace(commentID) == "" {
			fail(w, r, http.StatusBadRequest, gateway.ErrNoComment)
			return
		}
		if r.URL.Query().Get("confirm") != "true" {
			log.Info("delete not confirmed", "op", op, "post_id", postID, "comment_id", commentID)
			fail(w, r, http.StatusPreconditionRequired, errors.New("delete this comment? repeat with confirm=true"))
			return
		}

		cw.Delete(r.Context(), postID, commentID)
		respond(w, r, http.StatusAccepted, Response{Status: http.StatusAccepted})
	}
}
