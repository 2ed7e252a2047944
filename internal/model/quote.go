package model

import "time"

// Quote is a submitted quote.
//
// Quotes start unapproved and only become publicly listed once a moderator
// approves them. Upvotes is a cached COUNT of the votes table for this quote;
// it is recomputed by the vote ledger and never edited directly.
//
// SubmitterID is the account that submitted the quote (zero if that account
// was deleted). Author is the display name shown with the quote and may
// differ from the submitter.
type Quote struct {
	ID          int64     `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"quote"`
	Approved    bool      `json:"approved"`
	Upvotes     int       `json:"upvotes"`
	SubmitterID int64     `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// QuoteSort selects the ordering of a quote listing.
type QuoteSort string

const (
	SortNewest QuoteSort = "newest"
	SortOldest QuoteSort = "oldest"
	SortTop    QuoteSort = "top"
)

// ParseQuoteSort maps a URL segment to a sort order. Unknown values fall back
// to newest-first.
func ParseQuoteSort(s string) QuoteSort {
	switch QuoteSort(s) {
	case SortOldest, SortTop:
		return QuoteSort(s)
	default:
		return SortNewest
	}
}
