// Package repository declares the persistence contracts the services depend
// on. The sqlite subpackage implements them; service tests use in-memory
// fakes.
package repository

import (
	"context"

	"github.com/sakif/quoteboard/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// QuoteListOptions selects either the public listing (Approved) or the
// moderation queue (!Approved).
type QuoteListOptions struct {
	ListOptions
	Approved bool
	Sort     model.QuoteSort
}

type UserRepository interface {
	// Create fails with an apperror conflict (CodeUsernameTaken) when the
	// name is already used, compared case-insensitively.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByName(ctx context.Context, name string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id int64) error
}

type QuoteRepository interface {
	Create(ctx context.Context, quote *model.Quote) error
	GetByID(ctx context.Context, id int64) (*model.Quote, error)
	List(ctx context.Context, opts QuoteListOptions) ([]model.Quote, error)
	Count(ctx context.Context, approved bool) (int, error)
	// Update persists Author and Text only.
	Update(ctx context.Context, quote *model.Quote) error
	SetApproved(ctx context.Context, id int64, approved bool) error
	Delete(ctx context.Context, id int64) error

	// RecountVotes sets the cached upvote count of one quote to the number
	// of votes referencing it and returns the new value.
	RecountVotes(ctx context.Context, id int64) (int, error)
	// RecountAll repairs every quote whose cached count disagrees with the
	// votes table and reports how many were changed.
	RecountAll(ctx context.Context) (int64, error)
}

type VoteRepository interface {
	// Create fails with an apperror conflict (CodeAlreadyVoted) when the
	// user has already voted for the quote. The check is the store's
	// uniqueness constraint, so concurrent duplicates cannot both succeed.
	Create(ctx context.Context, vote *model.Vote) error
	// Delete fails with an apperror conflict (CodeNotVoted) when there is no
	// such vote.
	Delete(ctx context.Context, userID, quoteID int64) error
	Count(ctx context.Context, quoteID int64) (int, error)
	// VotedFor returns the subset of quoteIDs the user has voted for.
	VotedFor(ctx context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error)
}

type ModLogRepository interface {
	Append(ctx context.Context, entry *model.ModLogEntry) error
	List(ctx context.Context, opts ListOptions) ([]model.ModLogEntry, error)
}
