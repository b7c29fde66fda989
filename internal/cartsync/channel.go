package cartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/curiomarket/storefront/internal/cart"
	"github.com/curiomarket/storefront/pkg/logger"
)

// cartFeed is the slice of the cart service the channel needs: reading the
// persisted cart and hearing about same-context mutations.
type cartFeed interface {
	Load(ctx context.Context) []cart.Item
	Subscribe(fn cart.Subscriber) (cancel func())
}

// SignalSource emits an empty struct whenever another context may have
// changed the cart. Sources are best effort; the channel's poll ticker
// bounds staleness when a source misses a change.
type SignalSource interface {
	Events() <-chan struct{}
	Close() error
}

// Channel keeps this context's view of the cart fresh. A change signal, a
// resume, or a poll tick all trigger the same refresh: re-load the persisted
// cart and publish the snapshot to subscribers. Snapshots are never merged
// with in-memory state, whatever is persisted wins.
type Channel struct {
	feed    cartFeed
	source  SignalSource
	logg    *logger.Logger
	poll    time.Duration
	resume  chan struct{}
	stopped chan struct{}

	mu          sync.Mutex
	subs        []subscription
	nextSub     int
	cancelLocal func()
	closeOnce   sync.Once
}

type subscription struct {
	id int
	fn cart.Subscriber
}

// ChannelParams collects the sync channel dependencies. Source is optional;
// without one the channel relies on resumes and the poll ticker alone.
type ChannelParams struct {
	Feed         cartFeed
	Source       SignalSource
	Logger       *logger.Logger
	PollInterval time.Duration
}

// NewChannel builds the sync channel. Run must be called for refreshes to
// flow.
func NewChannel(params ChannelParams) (*Channel, error) {
	if params.Feed == nil {
		return nil, fmt.Errorf("cart feed required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PollInterval <= 0 {
		params.PollInterval = 2 * time.Second
	}
	return &Channel{
		feed:    params.Feed,
		source:  params.Source,
		logg:    params.Logger,
		poll:    params.PollInterval,
		resume:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}, nil
}

// Subscribe registers an observer of cart snapshots. The observer fires for
// local mutations and for refreshes triggered by other contexts.
func (c *Channel) Subscribe(fn cart.Subscriber) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := range c.subs {
			if c.subs[i].id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Resume signals that this context regained the foreground and should
// refresh immediately. Safe to call from any goroutine; never blocks.
func (c *Channel) Resume() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// Run publishes an initial snapshot, wires local mutations through, and then
// refreshes on every signal, resume, or poll tick until ctx is done.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.stopped)

	cancelLocal := c.feed.Subscribe(c.publish)
	c.mu.Lock()
	c.cancelLocal = cancelLocal
	c.mu.Unlock()

	c.refresh(ctx, "startup")

	var signals <-chan struct{}
	if c.source != nil {
		signals = c.source.Events()
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			c.refresh(ctx, "signal")
		case <-c.resume:
			c.refresh(ctx, "resume")
		case <-ticker.C:
			c.refresh(ctx, "poll")
		}
	}
}

// Close tears down the signal source and the local subscription. Idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancelLocal := c.cancelLocal
		c.cancelLocal = nil
		c.mu.Unlock()
		if cancelLocal != nil {
			cancelLocal()
		}
		if c.source != nil {
			err = multierr.Append(err, c.source.Close())
		}
	})
	return err
}

// Stopped closes once Run has returned.
func (c *Channel) Stopped() <-chan struct{} {
	return c.stopped
}

func (c *Channel) refresh(ctx context.Context, cause string) {
	items := c.feed.Load(ctx)
	c.logg.Debug(c.logg.WithFields(ctx, map[string]any{"cause": cause, "items": len(items)}), "cart refreshed")
	c.publish(items)
}

func (c *Channel) publish(items []cart.Item) {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(items)
	}
}
