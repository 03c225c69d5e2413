package model

import "math"

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ListOptions carries filter and pagination parameters for listing messages.
// Page is 1-indexed. A nil Status lists every message.
type ListOptions struct {
	Page    int
	PerPage int
	Status  *Status
}

// Normalize clamps PerPage to [1, MaxPerPage], substituting DefaultPerPage
// for a non-positive PerPage, and Page to [1, math.MaxInt/PerPage] so Offset
// cannot overflow.
func (o ListOptions) Normalize() ListOptions {
	if o.PerPage < 1 {
		o.PerPage = DefaultPerPage
	}
	if o.PerPage > MaxPerPage {
		o.PerPage = MaxPerPage
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if maxPage := math.MaxInt / o.PerPage; o.Page > maxPage {
		o.Page = maxPage
	}
	return o
}

// Offset is the number of rows to skip for the (normalized) page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

// MessagePage is one page of a message listing. Total counts every matching
// message across all pages.
type MessagePage struct {
	Items   []*Message
	Total   int
	Page    int
	PerPage int
}

// TotalPages returns the number of pages needed to hold Total items.
func (p *MessagePage) TotalPages() int {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}
