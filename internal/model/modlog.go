package model

import "time"

// ModAction names a privileged mutation recorded in the moderation log.
type ModAction string

const (
	ActionQuoteSubmit    ModAction = "quote.submit"
	ActionQuoteEdit      ModAction = "quote.edit"
	ActionQuoteDelete    ModAction = "quote.delete"
	ActionQuoteApprove   ModAction = "quote.approve"
	ActionQuoteUnapprove ModAction = "quote.unapprove"
	ActionUserFlags      ModAction = "user.flags"
	ActionUserEdit       ModAction = "user.edit"
	ActionUserDelete     ModAction = "user.delete"
)

// ModLogEntry is one immutable line of the moderation log.
type ModLogEntry struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action ModAction `json:"action"`
	Target string    `json:"target"`
}
