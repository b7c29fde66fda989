package checkout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curiomarket/storefront/internal/cart"
	"github.com/curiomarket/storefront/internal/identity"
	"github.com/curiomarket/storefront/internal/orders"
	"github.com/curiomarket/storefront/internal/payments"
	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
	"github.com/curiomarket/storefront/pkg/metrics"
	"github.com/curiomarket/storefront/pkg/money"
)

// State is a checkout session's position in the flow.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateSubmittingOrder  State = "submitting_order"
	StateAwaitingPayment  State = "awaiting_payment"
	StateSucceeded        State = "succeeded"
	StatePaymentCancelled State = "payment_cancelled"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StatePaymentCancelled || s == StateFailed
}

// Session is one checkout attempt. It is ephemeral; a retry builds a new
// session with a new reference.
type Session struct {
	Snapshot    []cart.Item
	UserID      string
	Reference   string
	Total       decimal.Decimal
	State       State
	Message     string
	ProviderRef string
}

type cartAccess interface {
	Load(ctx context.Context) []cart.Item
	Clear(ctx context.Context) error
}

type identityResolver interface {
	Resolve(ctx context.Context) (identity.User, error)
}

type orderCreator interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (orders.Result, error)
}

type paymentInitiator interface {
	Initiate(ctx context.Context, cfg payments.Config, onLink func(url string)) (payments.Outcome, error)
}

// Config carries the settlement parameters for payment initiation.
type Config struct {
	SettlementCurrency string
	ExchangeRate       decimal.Decimal
	MinorUnitScale     int32
	RedirectDelay      time.Duration
}

// Orchestrator drives one checkout at a time through
// Idle, Validating, SubmittingOrder, AwaitingPayment and into a terminal
// state. The cart is cleared only when the session reaches Succeeded.
type Orchestrator struct {
	carts    cartAccess
	ids      identityResolver
	orders   orderCreator
	pay      paymentInitiator
	cfg      Config
	logg     *logger.Logger
	metrics  *metrics.StorefrontMetrics
	onLink   func(url string)
	redirect func(reference string)
	newRef   func() string
	now      func() time.Time

	processing atomic.Bool
	mu         sync.Mutex
	session    *Session
}

// Params collects the orchestrator dependencies. OnPaymentPage receives the
// hosted payment URL; Redirect fires after a successful checkout's short
// delay so the visitor sees the confirmation before moving on.
type Params struct {
	Carts         cartAccess
	Identity      identityResolver
	Orders        orderCreator
	Payments      paymentInitiator
	Config        Config
	Logger        *logger.Logger
	Metrics       *metrics.StorefrontMetrics
	OnPaymentPage func(url string)
	Redirect      func(reference string)
}

// NewOrchestrator builds the checkout orchestrator.
func NewOrchestrator(params Params) (*Orchestrator, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart access required")
	}
	if params.Identity == nil {
		return nil, fmt.Errorf("identity resolver required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order client required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment adapter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Config.SettlementCurrency == "" {
		return nil, fmt.Errorf("settlement currency required")
	}
	if params.Config.ExchangeRate.Sign() <= 0 {
		return nil, fmt.Errorf("exchange rate must be positive")
	}
	return &Orchestrator{
		carts:    params.Carts,
		ids:      params.Identity,
		orders:   params.Orders,
		pay:      params.Payments,
		cfg:      params.Config,
		logg:     params.Logger,
		metrics:  params.Metrics,
		onLink:   params.OnPaymentPage,
		redirect: params.Redirect,
		newRef:   uuid.NewString,
		now:      time.Now,
	}, nil
}

// Session returns a copy of the most recent session, or nil before the
// first checkout.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	copied := *o.session
	return &copied
}

// Processing reports whether a checkout is currently past Idle.
func (o *Orchestrator) Processing() bool {
	return o.processing.Load()
}

// Execute runs one checkout attempt to a terminal state and returns the
// session. A second call while one is in flight returns CodeConflict without
// touching the running attempt.
func (o *Orchestrator) Execute(ctx context.Context) (session *Session, err error) {
	if !o.processing.CompareAndSwap(false, true) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a checkout is already in progress")
	}
	defer o.processing.Store(false)

	started := o.now()
	session = &Session{State: StateIdle}
	defer func() {
		if r := recover(); r != nil {
			o.logg.Error(ctx, "checkout panicked", fmt.Errorf("%v", r))
			session.State = StateFailed
			session.Message = "something went wrong, your cart is untouched"
			err = pkgerrors.New(pkgerrors.CodeInternal, "unexpected checkout failure")
		}
		o.finish(ctx, session, started)
	}()

	// Idle -> Validating. An empty cart blocks before anything leaves
	// this process.
	snapshot := o.carts.Load(ctx)
	if len(snapshot) == 0 {
		session.Message = "your cart is empty"
		return session, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	session.Snapshot = snapshot
	session.Total = cart.Total(snapshot)
	session.State = StateValidating

	user, err := o.ids.Resolve(ctx)
	if err != nil {
		session.State = StateFailed
		session.Message = "please sign in to check out"
		return session, err
	}
	session.UserID = user.ID
	session.Reference = o.newRef()
	session.State = StateSubmittingOrder
	ctx = o.logg.WithReference(o.logg.WithUserID(ctx, user.ID), session.Reference)

	result, err := o.orders.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:    user.ID,
		Items:     toLineItems(snapshot),
		Total:     session.Total,
		Reference: session.Reference,
		Status:    orders.StatusPending,
	})
	if err != nil {
		session.State = StateFailed
		session.Message = "could not reach the order service, please try again"
		return session, err
	}
	if !result.OK {
		session.State = StateFailed
		session.Message = fmt.Sprintf("order rejected: status %d: %s", result.Status, result.Body)
		return session, pkgerrors.New(pkgerrors.CodeOrderRejected, session.Message)
	}
	session.State = StateAwaitingPayment

	outcome, err := o.pay.Initiate(ctx, payments.Config{
		AmountMinorUnits: money.ToMinorUnits(session.Total, o.cfg.ExchangeRate, o.cfg.MinorUnitScale),
		Currency:         o.cfg.SettlementCurrency,
		PayerEmail:       user.Email,
		Reference:        session.Reference,
		Description:      fmt.Sprintf("Curio Market order %s", session.Reference),
	}, o.onLink)
	if err != nil {
		session.State = StateFailed
		session.Message = "payment could not be started, please try again"
		return session, err
	}
	session.ProviderRef = outcome.ProviderRef

	if outcome.Status == payments.StatusCancelled {
		session.State = StatePaymentCancelled
		session.Message = "payment cancelled, your cart is untouched"
		// The pending order stays behind with nothing reconciling it.
		o.logg.Warn(ctx, "payment cancelled, pending order left unreconciled")
		return session, nil
	}

	// Succeeded is the only path allowed to touch the cart.
	session.State = StateSucceeded
	session.Message = "payment received, thank you"
	if err := o.carts.Clear(ctx); err != nil {
		o.logg.Error(ctx, "cart clear after successful payment failed", err)
	}
	o.logg.Info(ctx, "checkout succeeded")

	if o.redirect != nil {
		reference := session.Reference
		time.AfterFunc(o.cfg.RedirectDelay, func() {
			o.redirect(reference)
		})
	}
	return session, nil
}

func (o *Orchestrator) finish(ctx context.Context, session *Session, started time.Time) {
	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	if session.State.Terminal() {
		o.metrics.ObserveCheckout(string(session.State), o.now().Sub(started))
	}
}

func toLineItems(items []cart.Item) []orders.LineItem {
	out := make([]orders.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, orders.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return out
}
