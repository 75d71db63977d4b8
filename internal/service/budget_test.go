package service

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/venue"
)

func quoteWithSell(sell string) *venue.Quote {
	return &venue.Quote{AfterSlippage: venue.Amounts{SellAmount: sell}}
}

func TestCheckBudget(t *testing.T) {
	ceiling := big.NewInt(10_000_000_000)

	tests := []struct {
		name    string
		sell    string
		wantErr error
	}{
		{name: "under budget", sell: "9999999999", wantErr: nil},
		{name: "exactly at budget", sell: "10000000000", wantErr: nil},
		{name: "one base unit over", sell: "10000000001", wantErr: errno.ErrBudgetExceeded},
		{name: "malformed amount", sell: "not-a-number", wantErr: errno.ErrQuoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBudget(quoteWithSell(tt.sell), ceiling, 6)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCheckBudgetNilQuote(t *testing.T) {
	err := CheckBudget(nil, big.NewInt(1), 6)
	assert.ErrorIs(t, err, errno.ErrQuoteUnavailable)
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "10.000000001", formatUnits(big.NewInt(10_000_000_001), 9))
	assert.Equal(t, "1", formatUnits(big.NewInt(1), 0))
}
