package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/curiomarket/storefront/pkg/errors"
	"github.com/curiomarket/storefront/pkg/logger"
)

// StatusPending is the state new orders are submitted in; the order service
// advances them once payment settles.
const StatusPending = "pending"

// LineItem is one cart entry as the order service expects it.
type LineItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"min=1"`
}

// CreateOrderInput is the order creation payload.
type CreateOrderInput struct {
	UserID    string          `json:"user_id" validate:"required"`
	Items     []LineItem      `json:"items" validate:"required,min=1,dive"`
	Total     decimal.Decimal `json:"total"`
	Reference string          `json:"reference" validate:"required"`
	Status    string          `json:"status" validate:"required"`
}

// Result reports what the order service said. A reachable service that
// rejects the order is OK=false with a nil error; only transport failures
// surface as errors.
type Result struct {
	OK     bool
	Status int
	Body   string
}

// Client submits orders to the order service over HTTP. Requests are sent
// exactly once; the caller decides what a rejection means.
type Client struct {
	baseURL  string
	http     *http.Client
	logg     *logger.Logger
	validate *validator.Validate
}

// NewClient builds the order service client.
func NewClient(baseURL string, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("order service url required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		logg:     logg,
		validate: newValidator(),
	}, nil
}

// CreateOrder posts the order. The response status and body are reported
// verbatim so failures read the same as what the service actually said.
func (c *Client) CreateOrder(ctx context.Context, input CreateOrderInput) (Result, error) {
	if err := c.validate.Struct(input); err != nil {
		return Result{}, formatValidationErrors(err)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order payload")
	}

	url := c.baseURL + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order request")
	}
	req.Header.Set("Content-Type", "application/json")

	ctx = c.logg.WithReference(ctx, input.Reference)
	c.logg.Debug(c.logg.WithField(ctx, "url", url), "submitting order")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order response")
	}

	result := Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
	if !result.OK {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"status": result.Status, "body": result.Body}), "order rejected")
	}
	return result, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func formatValidationErrors(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = fieldErr.Tag()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order payload").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order payload")
}
