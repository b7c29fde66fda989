package payments

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/curiomarket/storefront/pkg/logger"
)

// Listener is the local HTTP endpoint the provider's hosted page redirects
// back to. Each pending attempt resolves exactly once; duplicate redirects
// for the same reference get a friendly page but change nothing.
type Listener struct {
	server *http.Server
	logg   *logger.Logger

	mu      sync.Mutex
	pending map[string]*attempt
}

type attempt struct {
	once sync.Once
	ch   chan Outcome
}

// ListenerParams collects the listener dependencies. Registry is optional;
// when set the listener also serves /metrics.
type ListenerParams struct {
	Addr     string
	Logger   *logger.Logger
	Registry *prometheus.Registry
}

// NewListener builds the listener. Call Start to begin serving.
func NewListener(params ListenerParams) (*Listener, error) {
	if params.Addr == "" {
		return nil, fmt.Errorf("listener address required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	l := &Listener{
		logg:    params.Logger,
		pending: map[string]*attempt{},
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if params.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}
	router.Get("/payments/return", l.handleReturn)
	router.Get("/payments/cancel", l.handleCancel)

	l.server = &http.Server{
		Addr:              params.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return l, nil
}

// Await registers a pending attempt and returns the channel its outcome
// arrives on. The channel is buffered; a redirect resolves it even if the
// caller is not receiving yet.
func (l *Listener) Await(reference string) <-chan Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.pending[reference]
	if !ok {
		a = &attempt{ch: make(chan Outcome, 1)}
		l.pending[reference] = a
	}
	return a.ch
}

// Forget drops a pending attempt. Redirects arriving afterwards are ignored.
func (l *Listener) Forget(reference string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, reference)
}

// Start serves until Shutdown or a listen failure.
func (l *Listener) Start() error {
	l.logg.Info(l.logg.WithField(context.Background(), "addr", l.server.Addr), "payment listener starting")
	if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleReturn(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	l.resolve(r.Context(), reference, Outcome{
		Status:      StatusSucceeded,
		ProviderRef: r.URL.Query().Get("orderId"),
	})
	writePage(w, "Payment received", "You can close this tab and return to the store.")
}

func (l *Listener) handleCancel(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	l.resolve(r.Context(), reference, Outcome{Status: StatusCancelled})
	writePage(w, "Payment cancelled", "No charge was made. You can close this tab.")
}

func (l *Listener) resolve(ctx context.Context, reference string, outcome Outcome) {
	if reference == "" {
		l.logg.Warn(ctx, "payment redirect without a reference")
		return
	}

	l.mu.Lock()
	a, ok := l.pending[reference]
	l.mu.Unlock()
	if !ok {
		l.logg.Warn(l.logg.WithReference(ctx, reference), "payment redirect for unknown attempt")
		return
	}

	a.once.Do(func() {
		a.ch <- outcome
	})
}

func writePage(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>%s</title><h1>%s</h1><p>%s</p>", title, title, body)
}
