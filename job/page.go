package job

import (
	"fmt"

	"github.com/hoistq/hoist"
)

// Order is a supported sort order for job list queries.
type Order string

const (
	// OrderUpdatedAtAsc sorts oldest-updated first.
	OrderUpdatedAtAsc Order = "updatedAt:ASC"
	// OrderUpdatedAtDesc sorts newest-updated first.
	OrderUpdatedAtDesc Order = "updatedAt:DESC"
)

// PageRequest selects one page of an ordered job listing.
type PageRequest struct {
	Offset int64 `json:"offset"`
	Limit  int   `json:"limit"`
	Order  Order `json:"order"`
}

// Ascending returns a PageRequest ordered oldest-updated first.
func Ascending(offset int64, limit int) PageRequest {
	return PageRequest{Offset: offset, Limit: limit, Order: OrderUpdatedAtAsc}
}

// Descending returns a PageRequest ordered newest-updated first.
func Descending(offset int64, limit int) PageRequest {
	return PageRequest{Offset: offset, Limit: limit, Order: OrderUpdatedAtDesc}
}

// Validate rejects malformed page requests and unsupported orderings.
func (p PageRequest) Validate() error {
	if p.Offset < 0 {
		return fmt.Errorf("%w: negative page offset %d", hoist.ErrInvalidArgument, p.Offset)
	}
	if p.Limit < 0 {
		return fmt.Errorf("%w: negative page limit %d", hoist.ErrInvalidArgument, p.Limit)
	}
	if p.Order != OrderUpdatedAtAsc && p.Order != OrderUpdatedAtDesc {
		return fmt.Errorf("%w: unsupported sort order %q", hoist.ErrInvalidArgument, p.Order)
	}
	return nil
}

// Page is one page of jobs plus the total count for the full listing.
type Page struct {
	Total  int64  `json:"total"`
	Items  []*Job `json:"items"`
	Offset int64  `json:"offset"`
	Limit  int    `json:"limit"`
}

// HasMore reports whether pages beyond this one exist.
func (p *Page) HasMore() bool {
	return p.Offset+int64(len(p.Items)) < p.Total
}
