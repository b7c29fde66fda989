package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "prod" || !cfg.App.IsProd() {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if cfg.Storage.Backend != StorageBackendFile {
		t.Fatalf("expected file backend by default, got %q", cfg.Storage.Backend)
	}
	if cfg.OrderService.BaseURL != "https://api.curio.test" {
		t.Fatalf("unexpected order service url %q", cfg.OrderService.BaseURL)
	}
	if cfg.OrderService.Timeout != 15*time.Second {
		t.Fatalf("expected default order timeout, got %v", cfg.OrderService.Timeout)
	}
	if cfg.Checkout.SettlementCurrency != "NGN" {
		t.Fatalf("unexpected settlement currency %q", cfg.Checkout.SettlementCurrency)
	}
	rate, err := cfg.Checkout.Rate()
	if err != nil {
		t.Fatalf("rate parse: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("415.25")) {
		t.Fatalf("unexpected exchange rate %s", rate)
	}
	if cfg.Sync.PollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval, got %v", cfg.Sync.PollInterval)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("CURIO_STORAGE_BACKEND", "file")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing order service url to return an error")
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("CURIO_STORAGE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown backend to return an error")
	}
}

func TestLoad_RejectsNonPositiveRate(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("CURIO_CHECKOUT_EXCHANGE_RATE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero exchange rate to return an error")
	}
}

func TestListenerReturnURL(t *testing.T) {
	l := ListenerConfig{Addr: "127.0.0.1:9999"}
	if got := l.ReturnURL(); got != "http://127.0.0.1:9999/payments/return" {
		t.Fatalf("unexpected return url %q", got)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv("CURIO_APP_ENV", "prod")
	t.Setenv("CURIO_ORDER_SERVICE_URL", "https://api.curio.test")
	t.Setenv("CURIO_CHECKOUT_CURRENCY", "ngn")
	t.Setenv("CURIO_CHECKOUT_EXCHANGE_RATE", "415.25")
}
