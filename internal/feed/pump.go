package feed

import (
	"context"
	"log/slog"
	"sync"

	"CommentThreads/internal/models"
)

// LoadFunc reads the current snapshot of a post.
type LoadFunc func(ctx context.Context) (models.Snapshot, error)

// Pump turns change signals into sequential snapshot deliveries. Signals that
// arrive while a delivery is running are coalesced into one reload, since
// every reload reads the full state anyway.
type Pump struct {
	load    LoadFunc
	deliver SnapshotFunc
	log     *slog.Logger

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartPump schedules the initial load and starts the delivery goroutine.
// Cancelling ctx stops the pump like Close does.
func StartPump(ctx context.Context, load LoadFunc, deliver SnapshotFunc, log *slog.Logger) *Pump {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pump{
		load:    load,
		deliver: deliver,
		log:     log,
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	p.signal <- struct{}{}

	go p.run()

	return p
}

func (p *Pump) run() {
	const op = "feed.Pump.run"
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.signal:
		}

		snap, err := p.load(p.ctx)
		if p.ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Error("loading snapshot failed", "op", op, "error", err)
			continue
		}

		p.deliver(snap)
	}
}

// Notify asks for a reload. It never blocks.
func (p *Pump) Notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Done is closed once the delivery goroutine has exited.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Close stops the pump and waits for a running delivery to return.
func (p *Pump) Close() error {
	p.once.Do(p.cancel)
	<-p.done
	return nil
}
