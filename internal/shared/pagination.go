package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is a page request.
type Page struct {
	Page    int
	PerPage int
}

// Offset returns the row offset.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageFromQuery reads page/limit query parameters with defaults and caps.
func PageFromQuery(q url.Values) Page {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("limit"))
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Page{Page: page, PerPage: perPage}
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Paged wraps a listing with its pagination metadata.
type Paged[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}
