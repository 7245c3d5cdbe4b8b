package models

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	// MaxPage bounds the page number so the offset always fits a signed 64-bit integer.
	MaxPage = math.MaxInt32
)

// PageRequest selects one page of a listing.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize fills in defaults and clamps the limit and page number.
func (p PageRequest) Normalize(defaultLimit int) PageRequest {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	return p
}

// Skip is the number of items preceding the page. It saturates at math.MaxInt instead
// of overflowing.
func (p PageRequest) Skip() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Page is the uniform paginated result shape.
type Page[T any] struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalCount  int `json:"totalCount"`
	Items       []T `json:"items"`
}

// NewPage assembles a page, computing ceil(total/limit) pages.
func NewPage[T any](req PageRequest, total int, items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page[T]{
		CurrentPage: req.Page,
		TotalPages:  pages,
		TotalCount:  total,
		Items:       items,
	}
}

// VideoQuery filters and orders an owner's videos.
type VideoQuery struct {
	OwnerID  string
	Search   string
	SortBy   string
	SortDesc bool
	Page     PageRequest
}

// Sortable video fields accepted by VideoQuery.SortBy.
const (
	VideoSortCreatedAt = "createdAt"
	VideoSortTitle     = "title"
	VideoSortViews     = "views"
	VideoSortDuration  = "duration"
)
