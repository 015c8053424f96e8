package persistence

import (
	"testing"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestListQuery_Order(t *testing.T) {
	cases := []struct {
		name     string
		orderBy  string
		orderDir string
		col      string
		desc     bool
	}{
		{"default", "", "", "created_at", true},
		{"whitelisted asc", "stock", "ASC", "stock", false},
		{"padded", " price ", " asc ", "price", false},
		{"unknown column", "stock; DROP TABLE variants", "asc", "created_at", false},
		{"unknown direction", "sku", "sideways", "sku", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := variantList.order(shared.Filter{OrderBy: tc.orderBy, OrderDir: tc.orderDir})
			assert.Equal(t, tc.col, got.Column.Name)
			assert.Equal(t, tc.desc, got.Desc)
		})
	}
}

func TestListQuery_SortableColumnsDiffer(t *testing.T) {
	f := shared.Filter{OrderBy: "next_poll_at"}
	assert.Equal(t, "next_poll_at", listingList.order(f).Column.Name)
	assert.Equal(t, "created_at", productList.order(f).Column.Name)
}
