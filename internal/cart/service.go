package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
	"github.com/curiomarket/storefront/pkg/metrics"
)

// Subscriber receives the full cart snapshot after every mutation in this
// context. The slice must not be mutated.
type Subscriber func(items []Item)

// Service is the canonical owner of the cart. Every mutation persists first
// and notifies local subscribers second, so an observer reacting to a
// notification always re-reads the new value.
type Service interface {
	Load(ctx context.Context) []Item
	AddItem(ctx context.Context, item Item) error
	UpdateQuantity(ctx context.Context, productID string, delta int) error
	RemoveItem(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
	Total(ctx context.Context) decimal.Decimal
	Count(ctx context.Context) int
	Subscribe(fn Subscriber) (cancel func())
}

type service struct {
	store    Store
	logg     *logger.Logger
	metrics  *metrics.StorefrontMetrics
	announce func(ctx context.Context)

	mu      sync.Mutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn Subscriber
}

// ServiceParams collects the cart service dependencies.
type ServiceParams struct {
	Store   Store
	Logger  *logger.Logger
	Metrics *metrics.StorefrontMetrics
	// Announce broadcasts "something changed" to other contexts after a
	// successful persist. Optional; the sync channel's poll fallback covers
	// backends without a broadcast path.
	Announce func(ctx context.Context)
}

// NewService builds the cart service backed by the provided store.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:    params.Store,
		logg:     params.Logger,
		metrics:  params.Metrics,
		announce: params.Announce,
	}, nil
}

// Load deserializes the persisted cart. A missing or corrupt representation
// is the same as an empty cart, never an error.
func (s *service) Load(ctx context.Context) []Item {
	payload, err := s.store.Read(ctx)
	if err != nil {
		if err != ErrNotPersisted {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart read failed, treating as empty")
		}
		return nil
	}
	items, err := decodeItems(payload)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "discarding corrupt persisted cart")
		return nil
	}
	return items
}

// AddItem appends the item, or accumulates quantity when the product is
// already in the cart. A non-positive incoming quantity counts as one unit.
func (s *service) AddItem(ctx context.Context, item Item) error {
	if strings.TrimSpace(item.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if item.UnitPrice.Sign() < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.Load(ctx)
	merged := false
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, item)
	}
	return s.persistLocked(ctx, items, "add_item")
}

// UpdateQuantity applies a delta with a floor of one unit. Unknown product
// ids are a no-op.
func (s *service) UpdateQuantity(ctx context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.Load(ctx)
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		next := items[i].Quantity + delta
		if next < 1 {
			next = 1
		}
		items[i].Quantity = next
		return s.persistLocked(ctx, items, "update_quantity")
	}
	return nil
}

// RemoveItem deletes the matching entry. Unknown product ids are a no-op.
func (s *service) RemoveItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.Load(ctx)
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		items = append(items[:i], items[i+1:]...)
		return s.persistLocked(ctx, items, "remove_item")
	}
	return nil
}

// Clear empties the cart and removes the persisted representation.
func (s *service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	s.afterPersistLocked(ctx, nil, "clear")
	return nil
}

// Total derives the current cart total.
func (s *service) Total(ctx context.Context) decimal.Decimal {
	return Total(s.Load(ctx))
}

// Count derives the current unit count.
func (s *service) Count(ctx context.Context) int {
	return Count(s.Load(ctx))
}

// Subscribe registers a local change observer. Notifications are delivered
// synchronously, in subscription order, before the mutating call returns.
func (s *service) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.subs {
			if s.subs[i].id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *service) persistLocked(ctx context.Context, items []Item, op string) error {
	payload, err := encodeItems(items)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.store.Write(ctx, payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
	}
	s.afterPersistLocked(ctx, items, op)
	return nil
}

func (s *service) afterPersistLocked(ctx context.Context, items []Item, op string) {
	snapshot := cloneItems(items)
	for _, sub := range s.subs {
		sub.fn(snapshot)
	}
	if s.announce != nil {
		s.announce(ctx)
	}
	s.metrics.IncCartMutation(op)
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"op": op, "items": len(items)}), "cart persisted")
}

func encodeItems(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}

func decodeItems(payload []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}
