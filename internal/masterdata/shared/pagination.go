package shared

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
}

// FiltersFromQuery reads page, limit, search, sort, dir and active.
func FiltersFromQuery(q url.Values) ListFilters {
	f := ListFilters{
		Page:    DefaultPage,
		Limit:   DefaultLimit,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort"),
		SortDir: strings.ToLower(q.Get("dir")),
	}
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		f.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		f.Limit = min(l, MaxLimit)
	}
	if raw := q.Get("active"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			f.IsActive = &v
		}
	}
	return f
}

func (f ListFilters) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// OrderBy maps a requested sort key onto an allowed column.
func OrderBy(f ListFilters, allowed map[string]string, fallback string) string {
	col, ok := allowed[f.SortBy]
	if !ok {
		col = fallback
	}
	if f.SortDir == SortDesc {
		return col + " DESC"
	}
	return col + " ASC"
}
