package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount string
		rate   string
		scale  int32
		want   int64
	}{
		{name: "unit rate two decimals", amount: "20.00", rate: "1", scale: 2, want: 2000},
		{name: "published rate", amount: "20.00", rate: "415.25", scale: 2, want: 830500},
		{name: "rounding up", amount: "0.10", rate: "1.234", scale: 2, want: 12},
		{name: "rounding down", amount: "0.10", rate: "1.231", scale: 2, want: 12},
		{name: "zero decimal currency", amount: "13.37", rate: "151.2", scale: 0, want: 2022},
		{name: "zero amount", amount: "0", rate: "415.25", scale: 2, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			amount := decimal.RequireFromString(tt.amount)
			rate := decimal.RequireFromString(tt.rate)
			if got := ToMinorUnits(amount, rate, tt.scale); got != tt.want {
				t.Fatalf("ToMinorUnits(%s, %s, %d) = %d, want %d", tt.amount, tt.rate, tt.scale, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(decimal.RequireFromString("12.5")); got != "12.50" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(decimal.Zero); got != "0.00" {
		t.Fatalf("unexpected format %q", got)
	}
}

func TestRound2(t *testing.T) {
	t.Parallel()

	got := Round2(decimal.RequireFromString("10.005"))
	if !got.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("unexpected rounding: %s", got)
	}
}
