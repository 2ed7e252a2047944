package model

import "time"

// Vote records that one user upvoted one quote. The store holds at most one
// row per (UserID, QuoteID).
type Vote struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	QuoteID   int64     `json:"quoteId"`
	CreatedAt time.Time `json:"createdAt"`
}
