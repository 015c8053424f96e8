package persistence

import (
	"slices"
	"strings"

	"github.com/bundlesync/engine/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listQuery whitelists the columns a list endpoint may filter and sort on.
// Anything else in a shared.Filter is ignored, so user input never reaches
// raw SQL.
type listQuery struct {
	equal    []string
	sortable []string
}

var (
	productList = listQuery{
		equal:    []string{"brand", "category", "bundle_enabled"},
		sortable: []string{"id", "created_at", "updated_at", "sku", "name", "brand", "category"},
	}
	variantList = listQuery{
		equal:    []string{"product_id"},
		sortable: []string{"id", "created_at", "updated_at", "sku", "stock", "price"},
	}
	listingList = listQuery{
		equal:    []string{"status", "account_id", "variant_id", "dirty"},
		sortable: []string{"id", "created_at", "updated_at", "status", "account_id", "next_poll_at", "last_synced_at"},
	}
)

// where applies the whitelisted equality filters.
func (q listQuery) where(f shared.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, col := range q.equal {
			if v, ok := f.Filters[col]; ok {
				db = db.Where(clause.Eq{Column: clause.Column{Name: col}, Value: v})
			}
		}
		return db
	}
}

// page orders by a whitelisted column, created_at DESC by default, and
// limits to the filter's page when PageSize is set.
func (q listQuery) page(f shared.Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Order(q.order(f))
		if f.PageSize > 0 {
			db = db.Offset(f.Offset()).Limit(f.PageSize)
		}
		return db
	}
}

func (q listQuery) order(f shared.Filter) clause.OrderByColumn {
	col := strings.TrimSpace(f.OrderBy)
	if !slices.Contains(q.sortable, col) {
		col = "created_at"
	}
	return clause.OrderByColumn{
		Column: clause.Column{Name: col},
		Desc:   !strings.EqualFold(strings.TrimSpace(f.OrderDir), "asc"),
	}
}

// searchLike matches term case-insensitively against the given columns.
func searchLike(term string, cols ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if term == "" || len(cols) == 0 {
			return db
		}
		like := "%" + strings.ToLower(term) + "%"
		conds := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, c := range cols {
			conds[i] = "LOWER(" + c + ") LIKE ?"
			args[i] = like
		}
		return db.Where(strings.Join(conds, " OR "), args...)
	}
}
