package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"CommentThreads/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPump_InitialDelivery(t *testing.T) {
	delivered := make(chan models.Snapshot, 1)
	p := StartPump(context.Background(), func(ctx context.Context) (models.Snapshot, error) {
		return models.Snapshot{"a": {ID: "a"}}, nil
	}, func(s models.Snapshot) { delivered <- s }, discardLogger())
	defer p.Close()

	select {
	case s := <-delivered:
		if len(s) != 1 {
			t.Errorf("Expected 1 record, got %d", len(s))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected initial delivery")
	}
}

func TestPump_CoalescesSignals(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	delivered := make(chan struct{}, 16)

	p := StartPump(context.Background(), func(ctx context.Context) (models.Snapshot, error) {
		loads.Add(1)
		return models.Snapshot{}, nil
	}, func(s models.Snapshot) {
		delivered <- struct{}{}
		<-release
	}, discardLogger())
	defer p.Close()

	<-delivered
	for i := 0; i < 10; i++ {
		p.Notify()
	}
	close(release)

	<-delivered
	time.Sleep(50 * time.Millisecond)

	if n := loads.Load(); n != 2 {
		t.Errorf("loads=%d, want 2", n)
	}
}

func TestPump_LoadErrorKeepsRunning(t *testing.T) {
	var calls atomic.Int32
	delivered := make(chan struct{}, 1)

	p := StartPump(context.Background(), func(ctx context.Context) (models.Snapshot, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("unavailable")
		}
		return models.Snapshot{}, nil
	}, func(s models.Snapshot) { delivered <- struct{}{} }, discardLogger())
	defer p.Close()

	time.Sleep(20 * time.Millisecond)
	p.Notify()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected delivery after a failed load")
	}
}

func TestPump_CloseStopsDelivery(t *testing.T) {
	var delivered atomic.Int32
	p := StartPump(context.Background(), func(ctx context.Context) (models.Snapshot, error) {
		return models.Snapshot{}, nil
	}, func(s models.Snapshot) { delivered.Add(1) }, discardLogger())

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	before := delivered.Load()
	p.Notify()
	time.Sleep(20 * time.Millisecond)
	if after := delivered.Load(); after != before {
		t.Errorf("Expected no delivery after Close, got %d more", after-before)
	}

	select {
	case <-p.Done():
	default:
		t.Error("Expected Done to be closed")
	}
}
