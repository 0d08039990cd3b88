package psql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CommentThreads/internal/feed"
	"CommentThreads/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const changesChannel = "comments_changed"

const schema = `
	CREATE TABLE IF NOT EXISTS comments(
		id UUID PRIMARY KEY,
		post_id TEXT NOT NULL,
		parent_id TEXT,
		author TEXT NOT NULL,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS comments_post_idx ON comments (post_id);

	CREATE OR REPLACE FUNCTION notify_comments_changed() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'DELETE' THEN
			PERFORM pg_notify('comments_changed', OLD.post_id);
		ELSE
			PERFORM pg_notify('comments_changed', NEW.post_id);
		END IF;
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS comments_changed ON comments;
	CREATE TRIGGER comments_changed AFTER INSERT OR DELETE ON comments
		FOR EACH ROW EXECUTE FUNCTION notify_comments_changed();
	`

type Storage struct {
	db  *sql.DB
	dsn string
	log *slog.Logger
	now func() time.Time
}

var _ feed.Feed = (*Storage)(nil)

func New(storagePath string, log *slog.Logger) (*Storage, error) {
	const op = "storage.psql.New" // Mark for errors

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s, err := open(db, storagePath, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// open takes ownership of db: it is closed when the schema can not be set up.
func open(db *sql.DB, dsn string, log *slog.Logger) (*Storage, error) {
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, dsn: dsn, log: log, now: time.Now}, nil
}

// migrate checks the connection and creates the schema.
func migrate(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return err
	}

	// plain Exec without arguments goes through the simple query protocol,
	// which accepts several statements at once
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Append(ctx context.Context, postID string, c models.Comment) (string, error) {
	const op = "storage.psql.Append"

	newComID := uuid.New()
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}

	var parentID sql.NullString
	if !c.IsRoot() {
		parentID = sql.NullString{String: c.ParentID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments(id, post_id, parent_id, author, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, newComID, postID, parentID, c.Author, c.AuthorID, c.Text, c.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("%s: save new comment error; %w", op, err)
	}

	return newComID.String(), nil
}

func (s *Storage) Remove(ctx context.Context, postID, commentID string) error {
	const op = "storage.psql.Remove"

	// ids are UUIDs; anything else can not be stored, so there is nothing to remove
	if _, err := uuid.Parse(commentID); err != nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1 AND id = $2`, postID, commentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Snapshot(ctx context.Context, postID string) (models.Snapshot, error) {
	const op = "storage.psql.Snapshot"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, author, author_id, content, created_at
		FROM comments
		WHERE post_id = $1
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	snap := make(models.Snapshot)
	for rows.Next() {
		var (
			c        models.Comment
			parentID sql.NullString
		)
		if err := rows.Scan(&c.ID, &parentID, &c.Author, &c.AuthorID, &c.Text, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if parentID.Valid {
			c.ParentID = parentID.String
		}
		if err := c.Validate(); err != nil {
			s.log.Warn("quarantined malformed comment", "op", op, "post_id", postID, "comment_id", c.ID, "error", err)
			continue
		}
		snap[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return snap, nil
}

func (s *Storage) Subscribe(ctx context.Context, postID string, onSnapshot feed.SnapshotFunc) (feed.Subscription, error) {
	const op = "storage.psql.Subscribe"

	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.log.Warn("listener event", "op", op, "post_id", postID, "event", ev, "error", err)
		}
	})
	if err := listener.Listen(changesChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pump := feed.StartPump(ctx, func(ctx context.Context) (models.Snapshot, error) {
		return s.Snapshot(ctx, postID)
	}, onSnapshot, s.log)

	sub := &subscription{listener: listener, pump: pump}

	go func() {
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-pump.Done():
				sub.closeListener()
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect: notifications may have been lost
				if n == nil || n.Extra == postID {
					pump.Notify()
				}
			case <-ping.C:
				go func() { _ = listener.Ping() }()
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	listener *pq.Listener
	pump     *feed.Pump
	once     sync.Once
	err      error
}

func (sub *subscription) Close() error {
	_ = sub.pump.Close()
	return sub.closeListener()
}

func (sub *subscription) closeListener() error {
	sub.once.Do(func() {
		sub.err = sub.listener.Close()
	})
	return sub.err
}
