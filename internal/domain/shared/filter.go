package shared

// Filter narrows and orders a list query. Filters holds column equality
// conditions; repositories drop keys they do not whitelist.
type Filter struct {
	Page     int
	PageSize int
	Search   string
	OrderBy  string
	OrderDir string
	Filters  map[string]any
}

func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 20,
		OrderBy:  "created_at",
		OrderDir: "desc",
		Filters:  map[string]any{},
	}
}

// Offset is the row offset of the filter's page.
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
