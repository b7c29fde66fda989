package square

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
)

func TestEnsureIdempotencyKey(t *testing.T) {
	c := &Client{}
	// Provided key should be used verbatim.
	if got := c.ensureIdempotencyKey("pref", "custom-key"); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	// Empty key should be generated and include prefix.
	if got := c.ensureIdempotencyKey("prefix", ""); !strings.HasPrefix(got, "prefix-") {
		t.Fatalf("generated idempotency key %q missing prefix", got)
	}
}

func TestRedact(t *testing.T) {
	c := &Client{}
	if out := c.redact("buyer_email", "a@b.c"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if v := c.redact("reference", "order-1"); v != "order-1" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeUnauthorized},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "server error",
			status:   http.StatusBadGateway,
			payload:  `{"errors":[{"category":"API_ERROR","code":"INTERNAL_SERVER_ERROR"}]}`,
			wantCode: pkgerrors.CodeDependency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := c.mapSquareError(err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not a domain error", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))
	got := c.extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected error code %s", got[0].GetCode())
	}
}

func TestPaymentLinkRequestShape(t *testing.T) {
	params := PaymentLinkCreateParams{
		AmountMinorUnits: 830500,
		Currency:         "ngn",
		Reference:        "order-abc",
		PayerEmail:       "buyer@example.com",
		RedirectURL:      "http://127.0.0.1:8765/payments/return",
	}
	req := params.toSquareRequest("LOC1", "key-1")
	if req.QuickPay == nil || req.QuickPay.LocationID != "LOC1" {
		t.Fatalf("expected quick pay bound to location")
	}
	if req.QuickPay.PriceMoney == nil || *req.QuickPay.PriceMoney.Amount != 830500 {
		t.Fatalf("unexpected price money %+v", req.QuickPay.PriceMoney)
	}
	if *req.QuickPay.PriceMoney.Currency != sq.Currency("NGN") {
		t.Fatalf("currency should be upper-cased")
	}
	if req.PaymentNote == nil || *req.PaymentNote != "order-abc" {
		t.Fatalf("expected reference carried as payment note")
	}
	if req.CheckoutOptions == nil || req.CheckoutOptions.RedirectURL == nil {
		t.Fatalf("expected redirect url to be set")
	}
	if req.PrePopulatedData == nil || req.PrePopulatedData.BuyerEmail == nil {
		t.Fatalf("expected payer email to be pre-populated")
	}
}
