package order

import (
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/google/uuid"
)

// ApplyOutcome reports what ApplyOrderLine did with one line
type ApplyOutcome struct {
	ExternalLineID string            `json:"external_line_id"`
	Result         order.ApplyResult `json:"result,omitempty"`
	VariantID      *uuid.UUID        `json:"variant_id,omitempty"`
	Clamped        bool              `json:"clamped"`
	Error          string            `json:"error,omitempty"`
}

// BatchOutcome summarizes a batch of order lines
type BatchOutcome struct {
	Applied        int            `json:"applied"`
	AlreadyApplied int            `json:"already_applied"`
	SkuUnknown     int            `json:"sku_unknown"`
	Failed         int            `json:"failed"`
	Lines          []ApplyOutcome `json:"lines"`
}

func (b *BatchOutcome) add(o ApplyOutcome) {
	b.Lines = append(b.Lines, o)
	if o.Error != "" {
		b.Failed++
		return
	}
	switch o.Result {
	case order.ApplyResultApplied:
		b.Applied++
	case order.ApplyResultAlreadyApplied:
		b.AlreadyApplied++
	case order.ApplyResultSkuUnknown:
		b.SkuUnknown++
	}
}

// merge folds another batch into b
func (b *BatchOutcome) merge(other BatchOutcome) {
	for _, o := range other.Lines {
		b.add(o)
	}
}

// ApplyOrderLinesRequest is the body of the batch and webhook endpoints
type ApplyOrderLinesRequest struct {
	Lines []order.LineInput `json:"lines" binding:"required,min=1,max=500,dive"`
}

// Clamped counts applied lines whose decrement had to stop at zero
func (b BatchOutcome) Clamped() int {
	n := 0
	for _, o := range b.Lines {
		if o.Clamped {
			n++
		}
	}
	return n
}
