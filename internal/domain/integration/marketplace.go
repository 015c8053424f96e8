package integration

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

// Account identifies one seller on one marketplace. It is passed into every
// adapter call instead of being read from global state.
type Account struct {
	AccountID      string
	SellerID       string
	APIKey         string
	APISecret      string
	StoreFrontCode string
	BaseURL        string
	// PushInventory allows stock and price changes to skip a full listing update.
	PushInventory bool
}

// Validate checks the account has what an adapter needs to authenticate.
func (a Account) Validate() error {
	if strings.TrimSpace(a.BaseURL) == "" || a.APIKey == "" || a.APISecret == "" {
		return ErrAccountNotConfigured
	}
	return nil
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// ListingPayload is the full product offer sent on create or update.
type ListingPayload struct {
	SKU                string
	Barcode            string
	Title              string
	Description        string
	Brand              string
	PlatformCategoryID string
	PlatformBrandID    string
	Price              decimal.Decimal
	ListPrice          decimal.Decimal
	Stock              int
	VATRate            int
	Update             bool
}

// StockUpdate is the price-and-inventory subset pushed for active listings.
type StockUpdate struct {
	SKU       string
	Stock     int
	Price     decimal.Decimal
	ListPrice decimal.Decimal
}

// ---------------------------------------------------------------------------
// Batch status
// ---------------------------------------------------------------------------

// BatchState is the remote processing state of a submitted batch.
type BatchState string

const (
	BatchStatePending    BatchState = "PENDING"
	BatchStateProcessing BatchState = "PROCESSING"
	BatchStateCompleted  BatchState = "COMPLETED"
	BatchStateFailed     BatchState = "FAILED"
)

// IsTerminal reports whether polling can stop.
func (s BatchState) IsTerminal() bool {
	return s == BatchStateCompleted || s == BatchStateFailed
}

// BatchResult is what a poll learned about a batch.
type BatchResult struct {
	State BatchState
	// ItemSucceeded is meaningful only when State is Completed.
	ItemSucceeded  bool
	FailureReasons []string
}

// FailureMessage joins the reported reasons into one line.
func (r BatchResult) FailureMessage() string {
	if len(r.FailureReasons) == 0 {
		if r.State == BatchStateFailed {
			return "batch failed without a reason"
		}
		return "item rejected without a reason"
	}
	return strings.Join(r.FailureReasons, "; ")
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Marketplace publishes listings through asynchronous import batches.
type Marketplace interface {
	// SubmitListing creates or updates a listing and returns the batch to poll
	SubmitListing(ctx context.Context, account Account, payload ListingPayload) (string, error)
	// PollBatch fetches the processing state of a batch
	PollBatch(ctx context.Context, account Account, batchID string) (BatchResult, error)
	// PushStock updates price and stock of an existing listing
	PushStock(ctx context.Context, account Account, update StockUpdate) (string, error)
}

// OrderFeed lists order lines created or updated in a time window.
type OrderFeed interface {
	FetchOrders(ctx context.Context, account Account, since, until time.Time) ([]order.LineInput, error)
}

// AccountRegistry resolves marketplace accounts by ID.
type AccountRegistry interface {
	// Account returns ErrAccountNotConfigured for unknown IDs
	Account(accountID string) (Account, error)
	// Accounts lists every configured account
	Accounts() []Account
}

// StaticAccounts is an AccountRegistry over a fixed set of accounts.
type StaticAccounts map[string]Account

// NewStaticAccounts indexes accounts by AccountID.
func NewStaticAccounts(accounts ...Account) StaticAccounts {
	s := make(StaticAccounts, len(accounts))
	for _, a := range accounts {
		s[a.AccountID] = a
	}
	return s
}

// Account returns the account with the given ID
func (s StaticAccounts) Account(accountID string) (Account, error) {
	a, ok := s[accountID]
	if !ok {
		return Account{}, ErrAccountNotConfigured
	}
	return a, nil
}

// Accounts returns the accounts sorted by ID
func (s StaticAccounts) Accounts() []Account {
	out := make([]Account, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
