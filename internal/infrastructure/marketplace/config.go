package marketplace

import (
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/infrastructure/config"
)

// ClientConfig holds transport settings shared by every account.
type ClientConfig struct {
	Timeout time.Duration
	// RateLimit is requests per second per account; zero disables limiting.
	RateLimit float64
	RateBurst int
	// RetryCount applies to reads only. Writes are retried by the listing
	// state machine, which knows whether a batch was already accepted.
	RetryCount int
	UserAgent  string
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:    30 * time.Second,
		RateLimit:  5,
		RateBurst:  5,
		RetryCount: 2,
		UserAgent:  "BundleSync",
	}
}

// ClientConfigFrom maps the marketplace section of the application config.
func ClientConfigFrom(cfg config.MarketplaceConfig) ClientConfig {
	out := DefaultClientConfig()
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		out.RateLimit = cfg.RateLimit
	}
	if cfg.RateBurst > 0 {
		out.RateBurst = cfg.RateBurst
	}
	if cfg.RetryCount > 0 {
		out.RetryCount = cfg.RetryCount
	}
	return out
}

// NewAccountRegistry builds the account registry from configuration. Every
// account talks to the configured base URL.
func NewAccountRegistry(cfg config.MarketplaceConfig) integration.StaticAccounts {
	base := strings.TrimRight(cfg.BaseURL, "/")
	accounts := make([]integration.Account, 0, len(cfg.AllAccounts()))
	for _, acc := range cfg.AllAccounts() {
		accounts = append(accounts, integration.Account{
			AccountID:      acc.AccountID,
			SellerID:       acc.SellerID,
			APIKey:         acc.APIKey,
			APISecret:      acc.APISecret,
			StoreFrontCode: acc.StoreFrontCode,
			BaseURL:        base,
			PushInventory:  acc.PushInventory,
		})
	}
	return integration.NewStaticAccounts(accounts...)
}
