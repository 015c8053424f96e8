package listing

import (
	"time"

	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateListingRequest represents a request to list a variant on an account
type CreateListingRequest struct {
	VariantID          uuid.UUID        `json:"variant_id" binding:"required"`
	AccountID          string           `json:"account_id" binding:"required,max=64"`
	StockOverride      *int             `json:"stock_override" binding:"omitempty,min=0"`
	PriceOverride      *decimal.Decimal `json:"price_override"`
	PlatformCategoryID string           `json:"platform_category_id" binding:"max=64"`
	PlatformBrandID    string           `json:"platform_brand_id" binding:"max=64"`
}

// UpdateListingRequest replaces a listing's overrides and platform mapping
type UpdateListingRequest struct {
	StockOverride      *int             `json:"stock_override" binding:"omitempty,min=0"`
	PriceOverride      *decimal.Decimal `json:"price_override"`
	PlatformCategoryID string           `json:"platform_category_id" binding:"max=64"`
	PlatformBrandID    string           `json:"platform_brand_id" binding:"max=64"`
}

// ListingResponse represents a listing in API responses
type ListingResponse struct {
	ID                 uuid.UUID        `json:"id"`
	VariantID          uuid.UUID        `json:"variant_id"`
	AccountID          string           `json:"account_id"`
	Status             listing.Status   `json:"status"`
	ExternalBatchID    string           `json:"external_batch_id,omitempty"`
	LastSyncMessage    string           `json:"last_sync_message,omitempty"`
	StockOverride      *int             `json:"stock_override,omitempty"`
	PriceOverride      *decimal.Decimal `json:"price_override,omitempty"`
	PlatformCategoryID string           `json:"platform_category_id,omitempty"`
	PlatformBrandID    string           `json:"platform_brand_id,omitempty"`
	Published          bool             `json:"published"`
	Dirty              bool             `json:"dirty"`
	PollAttempts       int              `json:"poll_attempts"`
	NextPollAt         *time.Time       `json:"next_poll_at,omitempty"`
	LastSyncedAt       *time.Time       `json:"last_synced_at,omitempty"`
	Version            int              `json:"version"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// SyncResponse is the result of SyncListing. Deferred means a cycle was
// already running and the change will be sent when it ends.
type SyncResponse struct {
	Listing  ListingResponse `json:"listing"`
	Deferred bool            `json:"deferred"`
}

// ToListingResponse converts a domain Listing to ListingResponse
func ToListingResponse(l *listing.Listing) ListingResponse {
	return ListingResponse{
		ID:                 l.ID,
		VariantID:          l.VariantID,
		AccountID:          l.AccountID,
		Status:             l.Status,
		ExternalBatchID:    l.ExternalBatchID,
		LastSyncMessage:    l.LastSyncMessage,
		StockOverride:      l.StockOverride,
		PriceOverride:      l.PriceOverride,
		PlatformCategoryID: l.PlatformCategoryID,
		PlatformBrandID:    l.PlatformBrandID,
		Published:          l.Published,
		Dirty:              l.Dirty,
		PollAttempts:       l.PollAttempts,
		NextPollAt:         l.NextPollAt,
		LastSyncedAt:       l.LastSyncedAt,
		Version:            l.Version,
		UpdatedAt:          l.UpdatedAt,
	}
}

// ToListingResponses converts a slice of listings
func ToListingResponses(listings []*listing.Listing) []ListingResponse {
	out := make([]ListingResponse, len(listings))
	for i, l := range listings {
		out[i] = ToListingResponse(l)
	}
	return out
}
