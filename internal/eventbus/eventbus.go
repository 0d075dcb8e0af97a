// Package eventbus implements pkg/eventbus.Bus as a concurrent,
// best-effort fan-out to registered subscribers using an errgroup to
// dispatch to every subscriber in parallel.
package eventbus

import (
	"context"
	"sync"

	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	"github.com/ledgerflow-xyz/evmindexer/pkg/eventbus"
	"golang.org/x/sync/errgroup"
)

// Bus is the concrete, in-process implementation of eventbus.Bus.
type Bus struct {
	log *logger.Logger

	mu          sync.Mutex
	nextID      int
	subscribers map[int]eventbus.Subscriber
}

// New builds an empty Bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		log:         log.WithComponent("event-bus"),
		subscribers: make(map[int]eventbus.Subscriber),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn eventbus.Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish delivers evt to every current subscriber concurrently.
// Delivery is at-most-once and best-effort: a subscriber error is
// logged and never returned to the caller.
func (b *Bus) Publish(ctx context.Context, evt eventbus.Event) {
	b.mu.Lock()
	fns := make([]eventbus.Subscriber, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			if err := fn(gctx, evt); err != nil {
				b.log.Warnf("subscriber failed on group %s: %v", evt.Group, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
