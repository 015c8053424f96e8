package order

import (
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/google/uuid"
)

// ApplyResult is the outcome of applying one marketplace order line.
type ApplyResult string

const (
	ApplyResultApplied        ApplyResult = "applied"
	ApplyResultAlreadyApplied ApplyResult = "already_applied"
	ApplyResultSkuUnknown     ApplyResult = "sku_unknown"
)

// LineInput is an order line as received from a marketplace.
type LineInput struct {
	OrderID        string    `json:"order_id"`
	ExternalLineID string    `json:"external_line_id"`
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Validate checks the fields that make a line applicable.
func (in LineInput) Validate() error {
	if strings.TrimSpace(in.ExternalLineID) == "" {
		return shared.InvalidInput("External line ID is required")
	}
	if strings.TrimSpace(in.SKU) == "" {
		return shared.InvalidInput("SKU is required")
	}
	if in.Quantity <= 0 {
		return shared.InvalidInput("Quantity must be positive")
	}
	return nil
}

// OrderLine is the dedupe record of an order line. Its presence means the
// line's stock effect has been applied, or that there was nothing to apply.
type OrderLine struct {
	shared.BaseEntity
	ExternalLineID string     `gorm:"type:varchar(128);not null;uniqueIndex"`
	OrderID        string     `gorm:"type:varchar(128);not null;index"`
	SKU            string     `gorm:"type:varchar(100);not null"`
	Quantity       int        `gorm:"not null"`
	Status         string     `gorm:"type:varchar(50);not null;default:''"`
	VariantID      *uuid.UUID `gorm:"type:uuid;index"`
	AppliedAt      *time.Time `gorm:"index"`
	Clamped        bool       `gorm:"not null;default:false"`
	OccurredAt     time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (OrderLine) TableName() string {
	return "order_lines"
}

// NewAppliedLine records a line whose stock effect was applied to variantID.
func NewAppliedLine(in LineInput, variantID uuid.UUID, clamped bool) *OrderLine {
	line := newLine(in)
	now := time.Now()
	line.VariantID = &variantID
	line.AppliedAt = &now
	line.Clamped = clamped
	return line
}

// NewUnknownSkuLine records a line whose SKU matched no variant. Keeping it
// makes replays of the same line no-ops.
func NewUnknownSkuLine(in LineInput) *OrderLine {
	return newLine(in)
}

func newLine(in LineInput) *OrderLine {
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return &OrderLine{
		BaseEntity:     shared.NewBaseEntity(),
		ExternalLineID: strings.TrimSpace(in.ExternalLineID),
		OrderID:        strings.TrimSpace(in.OrderID),
		SKU:            strings.ToUpper(strings.TrimSpace(in.SKU)),
		Quantity:       in.Quantity,
		Status:         in.Status,
		OccurredAt:     occurred,
	}
}

// IsApplied reports whether the line changed stock.
func (l *OrderLine) IsApplied() bool {
	return l.AppliedAt != nil
}

// UpdateStatus records a newer marketplace status. Stock is never touched again.
func (l *OrderLine) UpdateStatus(status string) bool {
	if status == "" || status == l.Status {
		return false
	}
	l.Status = status
	l.Touch()
	return true
}
