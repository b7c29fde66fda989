package cartsync

import (
	"sync/atomic"

	"github.com/curiomarket/storefront/internal/cart"
)

// Badge mirrors the cart's unit count, the number the storefront header
// shows. Wire it to a Channel so it tracks changes from every context.
type Badge struct {
	count atomic.Int64
}

// NewBadge returns a badge seeded at zero.
func NewBadge() *Badge {
	return &Badge{}
}

// Apply is a cart.Subscriber; pass it to Channel.Subscribe.
func (b *Badge) Apply(items []cart.Item) {
	b.count.Store(int64(cart.Count(items)))
}

// Count returns the last observed unit count.
func (b *Badge) Count() int {
	return int(b.count.Load())
}
