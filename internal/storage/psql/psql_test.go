package psql

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"CommentThreads/internal/models"

	"github.com/google/uuid"
)

// Needs a running PostgreSQL, e.g.
// POSTGRES_DSN="host=localhost port=5455 user=postgresUser password=postgresPW dbname=postgres sslmode=disable"
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN is not set")
	}

	s, err := New(dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStorage_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	postID := "test-" + uuid.NewString()

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
	wait()

	rootID, err := s.Append(ctx, postID, models.Comment{Author: "Ann", AuthorID: "u1", Text: "top", ParentID: models.RootID})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	wait()

	replyID, err := s.Append(ctx, postID, models.Comment{Author: "Bob", AuthorID: "u2", Text: "reply", ParentID: rootID})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := wait()
	for len(snap) < 2 {
		snap = wait()
	}
	if !snap[rootID].IsRoot() {
		t.Errorf("Expected %s to be a root comment, got parent '%s'", rootID, snap[rootID].ParentID)
	}
	if snap[replyID].ParentID != rootID {
		t.Errorf("Expected reply parent %s, got '%s'", rootID, snap[replyID].ParentID)
	}

	if err := s.Remove(ctx, postID, rootID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	after := wait()
	if _, ok := after[rootID]; ok {
		t.Errorf("Expected %s to be removed", rootID)
	}
	if _, ok := after[replyID]; !ok {
		t.Errorf("Expected reply to stay after parent removal")
	}

	if err := s.Remove(ctx, postID, "not-a-uuid"); err != nil {
		t.Errorf("Expected removing an unknown id to be a no-op, got %v", err)
	}
}
