package domain

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// Pagination defaults.
const (
	DefaultPage     = 0
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage keeps Page*Size within a 32-bit row offset.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// SortDirection orders a listing.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection is case-insensitive; anything other than "asc" sorts descending.
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(s), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// CardSortField names a sortable card column.
type CardSortField string

const (
	CardSortID         CardSortField = "id"
	CardSortNumber     CardSortField = "number"
	CardSortExpiryDate CardSortField = "expiryDate"
	CardSortBalance    CardSortField = "balance"
	CardSortStatus     CardSortField = "status"
	CardSortCreatedAt  CardSortField = "createdAt"
)

// ParseCardSortField maps a field name onto a sortable column, falling back
// to createdAt for unknown names.
func ParseCardSortField(s string) CardSortField {
	switch f := CardSortField(strings.TrimSpace(s)); f {
	case CardSortID, CardSortNumber, CardSortExpiryDate, CardSortBalance, CardSortStatus, CardSortCreatedAt:
		return f
	}
	return CardSortCreatedAt
}

// PageRequest is a normalised page/size pair.
type PageRequest struct {
	Page int
	Size int
}

// NewPageRequest applies the defaults: a negative page becomes 0, a
// non-positive size becomes 10 and pages or sizes above MaxPage and
// MaxPageSize are capped.
func NewPageRequest(page, size int) PageRequest {
	if page < 0 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return PageRequest{Page: page, Size: size}
}

// Offset is the number of rows to skip. Out-of-range fields are clamped so
// the result never overflows or goes negative.
func (p PageRequest) Offset() int {
	page := min(max(p.Page, 0), MaxPage)
	size := min(max(p.Size, 0), MaxPageSize)
	return page * size
}

// CardFilter selects cards for a listing. Nil pointers disable that criterion.
type CardFilter struct {
	OwnerID        *uuid.UUID
	Status         *CardStatus
	NumberFragment string
	Sort           CardSortField
	Direction      SortDirection
	PageRequest
}

// NormalizeNumberFragment keeps only digits and truncates to the last four.
// An empty result disables the number filter.
func NormalizeNumberFragment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return lastN(b.String(), 4)
}

// NewCardFilter builds a normalised CardFilter.
func NewCardFilter(
	ownerID *uuid.UUID,
	status *CardStatus,
	fragment, sortField, direction string,
	page, size int,
) CardFilter {
	return CardFilter{
		OwnerID:        ownerID,
		Status:         status,
		NumberFragment: NormalizeNumberFragment(fragment),
		Sort:           ParseCardSortField(sortField),
		Direction:      ParseSortDirection(direction),
		PageRequest:    NewPageRequest(page, size),
	}
}

// Matches reports whether card satisfies the owner, status and number criteria.
func (f CardFilter) Matches(card *Card) bool {
	if f.OwnerID != nil && card.OwnerID != *f.OwnerID {
		return false
	}
	if f.Status != nil && card.Status != *f.Status {
		return false
	}
	if f.NumberFragment != "" && !strings.Contains(card.Number, f.NumberFragment) {
		return false
	}
	return true
}

// UserFilter selects users for a listing.
type UserFilter struct {
	UsernameFragment string
	Role             *Role
	PageRequest
}

// Page is one page of a listing plus the metadata to navigate the rest.
type Page[T any] struct {
	Content       []T   `json:"content"`
	CurrentPage   int   `json:"current_page"`
	TotalPages    int   `json:"total_pages"`
	TotalElements int64 `json:"total_elements"`
	PageSize      int   `json:"page_size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPage computes the page metadata for content out of total elements.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		CurrentPage:   req.Page,
		TotalPages:    totalPages,
		TotalElements: total,
		PageSize:      req.Size,
		First:         req.Page == 0,
		Last:          req.Page >= totalPages-1,
	}
}

// MapPage converts the content of a page while keeping its metadata.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Content))
	for i, v := range p.Content {
		out[i] = fn(v)
	}
	return Page[U]{
		Content:       out,
		CurrentPage:   p.CurrentPage,
		TotalPages:    p.TotalPages,
		TotalElements: p.TotalElements,
		PageSize:      p.PageSize,
		First:         p.First,
		Last:          p.Last,
	}
}
