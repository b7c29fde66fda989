package payments

import (
	"context"
	"fmt"
	"net/url"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
	"github.com/curiomarket/storefront/pkg/square"
)

// Status is the terminal outcome of one payment attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
)

// Outcome is what a payment attempt resolved to. ProviderRef carries the
// provider's own id for the payment when one is known.
type Outcome struct {
	Status      Status
	ProviderRef string
}

// Config describes one payment attempt.
type Config struct {
	AmountMinorUnits int64
	Currency         string
	PayerEmail       string
	Reference        string
	Description      string
}

type linkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkCreateParams) (*square.PaymentLink, error)
}

type returnAwaiter interface {
	Await(reference string) <-chan Outcome
	Forget(reference string)
}

// Adapter drives a payment through the provider's hosted page. It creates a
// payment link, hands the URL to the caller, and blocks until the shopper
// lands back on the local listener exactly once.
type Adapter struct {
	links    linkCreator
	listener returnAwaiter
	baseURL  string
	logg     *logger.Logger
}

// AdapterParams collects the payment adapter dependencies. ReturnBaseURL is
// the listener's return endpoint without query parameters.
type AdapterParams struct {
	Links         linkCreator
	Listener      returnAwaiter
	ReturnBaseURL string
	Logger        *logger.Logger
}

// NewAdapter builds the payment adapter.
func NewAdapter(params AdapterParams) (*Adapter, error) {
	if params.Links == nil {
		return nil, fmt.Errorf("payment link client required")
	}
	if params.Listener == nil {
		return nil, fmt.Errorf("return listener required")
	}
	if params.ReturnBaseURL == "" {
		return nil, fmt.Errorf("return url required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Adapter{
		links:    params.Links,
		listener: params.Listener,
		baseURL:  params.ReturnBaseURL,
		logg:     params.Logger,
	}, nil
}

// Initiate creates the hosted payment page and waits for its outcome. onLink
// receives the page URL once it exists, before the wait begins; pass the
// browser opener there. Exactly one Outcome is returned per call unless ctx
// ends first.
func (a *Adapter) Initiate(ctx context.Context, cfg Config, onLink func(url string)) (Outcome, error) {
	if cfg.Reference == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if cfg.AmountMinorUnits <= 0 {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	outcomes := a.listener.Await(cfg.Reference)
	defer a.listener.Forget(cfg.Reference)

	link, err := a.links.CreatePaymentLink(ctx, square.PaymentLinkCreateParams{
		AmountMinorUnits: cfg.AmountMinorUnits,
		Currency:         cfg.Currency,
		Reference:        cfg.Reference,
		PayerEmail:       cfg.PayerEmail,
		Description:      cfg.Description,
		RedirectURL:      a.returnURL(cfg.Reference),
		IdempotencyKey:   cfg.Reference,
	})
	if err != nil {
		return Outcome{}, err
	}

	ctx = a.logg.WithReference(ctx, cfg.Reference)
	a.logg.Info(a.logg.WithField(ctx, "payment_link_id", link.ID), "payment page created")

	if onLink != nil {
		onLink(link.URL)
	}

	select {
	case <-ctx.Done():
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeCancelled, ctx.Err(), "payment wait interrupted")
	case outcome := <-outcomes:
		if outcome.ProviderRef == "" {
			outcome.ProviderRef = link.OrderID
		}
		a.logg.Info(a.logg.WithField(ctx, "status", string(outcome.Status)), "payment resolved")
		return outcome, nil
	}
}

func (a *Adapter) returnURL(reference string) string {
	return a.baseURL + "?reference=" + url.QueryEscape(reference)
}
