package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
)

// PaymentLinkCreateParams contains the fields required to open a hosted
// Square checkout page for one payment attempt.
type PaymentLinkCreateParams struct {
	AmountMinorUnits int64
	Currency         string
	Reference        string
	PayerEmail       string
	Description      string
	RedirectURL      string
	IdempotencyKey   string
}

func (p PaymentLinkCreateParams) toSquareRequest(locationID, idempotencyKey string) *sqcheckout.CreatePaymentLinkRequest {
	name := strings.TrimSpace(p.Description)
	if name == "" {
		name = "Storefront order"
	}
	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       name,
			LocationID: locationID,
			PriceMoney: moneyPtr(p.AmountMinorUnits, p.Currency),
		},
	}
	if trimmed := strings.TrimSpace(p.Reference); trimmed != "" {
		req.PaymentNote = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.RedirectURL); trimmed != "" {
		req.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: ptrString(trimmed)}
	}
	if trimmed := strings.TrimSpace(p.PayerEmail); trimmed != "" {
		req.PrePopulatedData = &sq.PrePopulatedData{BuyerEmail: ptrString(trimmed)}
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
