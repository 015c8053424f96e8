package listing

import "github.com/bundlesync/engine/internal/domain/shared"

var (
	// ErrSubmitInFlight means a submit or poll is already running. The change
	// was recorded on the listing and will be sent when the current cycle ends.
	ErrSubmitInFlight = shared.NewDomainError("SUBMIT_IN_FLIGHT", "A marketplace submission is already in progress; the change was queued")
	// ErrListingArchived is returned for operations on an archived listing.
	ErrListingArchived = shared.NewDomainError("LISTING_ARCHIVED", "Listing is archived")
)
