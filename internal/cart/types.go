package cart

import "github.com/shopspring/decimal"

// Item is one product entry in the cart. Price and seller are snapshots taken
// when the product was added; at most one Item exists per product id.
type Item struct {
	ProductID  string          `json:"id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	ImageURL   *string         `json:"image_url,omitempty"`
	SellerName *string         `json:"seller_name,omitempty"`
}

// Total derives the cart total as the sum of unit price times quantity,
// rounded to two decimal places.
func Total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum.Round(2)
}

// Count derives the total number of units across all line items.
func Count(items []Item) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
