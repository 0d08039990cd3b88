package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CommentThreads/internal/live"
	"CommentThreads/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePongTimeout  = 60 * time.Second
	livePingInterval = livePongTimeout * 9 / 10
	liveBufferSize   = 16
)

const (
	MessageThread = "thread"
	MessageNotice = "notice"
)

// LiveMessage is one frame of the live stream.
type LiveMessage struct {
	Type   string         `json:"type"`
	Thread *models.Thread `json:"thread,omitempty"`
	Error  string         `json:"error,omitempty"`
	Notice *models.Notice `json:"notice,omitempty"`
}

// OriginChecker accepts requests without an Origin header, same-origin
// requests and origins listed in allowed ("*" allows any).
func OriginChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}

		origin = strings.TrimSuffix(origin, "/")
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// LiveComments streams the thread of a post over a websocket: one message
// per feed snapshot, plus failure notices for the connected user. The feed
// subscription lives exactly as long as the socket.
func LiveComments(log *slog.Logger, sub live.Subscriber, hub *NoticeHub, identity IdentityFunc, allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     OriginChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.LiveComments"
		postID := chi.URLParam(r, "postID")
		wlog := log
		log := log.With("op", op, "post_id", postID)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade error", "error", err)
			return
		}
		defer ws.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		send := make(chan LiveMessage, liveBufferSize)

		watcher, err := live.Watch(ctx, sub, postID, wlog, func(t models.Thread, err error) {
			msg := LiveMessage{Type: MessageThread, Thread: &t}
			if err != nil {
				msg.Error = err.Error()
			}
			select {
			case send <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil {
			log.Error("subscribe error", "error", err)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
				time.Now().Add(liveWriteTimeout))
			return
		}
		defer func() {
			cancel()
			if err := watcher.Close(); err != nil {
				log.Warn("closing watcher", "error", err)
			}
		}()

		if hub != nil {
			var userID string
			if who, ok := identity(r.Context()); ok {
				userID = who.ID
			}
			unlisten := hub.Listen(postID, userID, func(n models.Notice) {
				select {
				case send <- LiveMessage{Type: MessageNotice, Notice: &n}:
				default:
					log.Warn("notice dropped, client too slow")
				}
			})
			defer unlisten()
		}

		go func() {
			defer cancel()

			ws.SetReadLimit(512)
			ws.SetReadDeadline(time.Now().Add(livePongTimeout))
			ws.SetPongHandler(func(string) error {
				return ws.SetReadDeadline(time.Now().Add(livePongTimeout))
			})
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(livePingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(liveWriteTimeout))
				return
			case msg := <-send:
				ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
				if err := ws.WriteJSON(msg); err != nil {
					log.Info("websocket write error", "error", err)
					return
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
					return
				}
			}
		}
	}
}
