package money_test

import (
	"testing"

	"github.com/veloswap/market/internal/money"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "¥0"},
		{999, "¥999"},
		{15000, "¥15,000"},
		{1234567, "¥1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := money.Format(tt.amount); got != tt.want {
				t.Errorf("Format(%d) = %q, want %q", tt.amount, got, tt.want)
			}
		})
	}
}
