package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		App: AppConfig{Env: "development"},
		Wallet: WalletConfig{
			SafeAddress: "0x35eD9A9D1122A1544e031Cc92fCC7eA599e28D9C",
			ChainID:     11155111,
			RpcUrl:      "https://sepolia.example.org",
		},
		Loan: LoanConfig{
			LenderAddress:           "0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951",
			BorrowedToken:           "0x29f2D40B0605204364af54EC677bD022dA425d03",
			BorrowedTokenDecimals:   8,
			BorrowedAmount:          "100000000",
			CollateralToken:         "0x8267cF9254734C6Eb452a7bb9AAF97B392258b21",
			CollateralTokenDecimals: 6,
			CollateralAmount:        "10000000000",
		},
		Venue: VenueConfig{
			BaseUrl:            "https://venue.example.org",
			SettlementContract: "0x9008D19f58AAbD9eD0D60971565AA8510560ab41",
			Env:                "staging",
		},
		Retry: RetryConfig{VenueAttempts: 5, VenueBackoffMs: 10, WalletAttempts: 3, WalletBackoffMs: 10, ReplanAttempts: 3},
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad safe address", func(c *Config) { c.Wallet.SafeAddress = "not-an-address" }},
		{"bad lender", func(c *Config) { c.Loan.LenderAddress = "0x123" }},
		{"zero amount", func(c *Config) { c.Loan.BorrowedAmount = "0" }},
		{"non numeric amount", func(c *Config) { c.Loan.CollateralAmount = "10.5" }},
		{"missing rpc", func(c *Config) { c.Wallet.RpcUrl = "" }},
		{"missing venue url", func(c *Config) { c.Venue.BaseUrl = "" }},
		{"zero chain id", func(c *Config) { c.Wallet.ChainID = 0 }},
		{"zero retry attempts", func(c *Config) { c.Retry.VenueAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
