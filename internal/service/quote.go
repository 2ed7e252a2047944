package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/modlog"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/repository"
)

// Quote limits.
const (
	MaxQuoteLength  = 1000
	MaxAuthorLength = 64
)

// QuotePage is one page of a listing plus which of its quotes the viewer has
// already voted for.
type QuotePage struct {
	Quotes     []model.Quote
	Voted      map[int64]bool
	Sort       model.QuoteSort
	Page       int
	TotalPages int
}

// HasPrev reports whether there is a page before this one.
func (p *QuotePage) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether there is a page after this one.
func (p *QuotePage) HasNext() bool { return p.Page < p.TotalPages }

// QuoteService handles submission, display and moderation of quotes.
type QuoteService struct {
	quotes repository.QuoteRepository
	votes  repository.VoteRepository
	ledger *VoteService
	mod    Recorder
	logger *slog.Logger
}

func NewQuoteService(
	quotes repository.QuoteRepository,
	votes repository.VoteRepository,
	ledger *VoteService,
	mod Recorder,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		quotes: quotes,
		votes:  votes,
		ledger: ledger,
		mod:    mod,
		logger: logger,
	}
}

// validateQuote trims and checks a submission. An empty author falls back to
// fallbackAuthor.
func validateQuote(author, text, fallbackAuthor string) (string, string, error) {
	text = strings.TrimSpace(text)
	author = strings.TrimSpace(author)

	if text == "" {
		return "", "", apperror.ValidationFailed("quote", "The quote can't be blank.")
	}
	if utf8.RuneCountInString(text) > MaxQuoteLength {
		return "", "", apperror.ValidationFailed("quote",
			fmt.Sprintf("The quote is too long! Use at most %d characters.", MaxQuoteLength))
	}
	if author == "" {
		author = fallbackAuthor
	}
	if author == "" {
		return "", "", apperror.ValidationFailed("author", "The author can't be blank.")
	}
	if utf8.RuneCountInString(author) > MaxAuthorLength {
		return "", "", apperror.ValidationFailed("author",
			fmt.Sprintf("The author name is too long! Use at most %d characters.", MaxAuthorLength))
	}
	return author, text, nil
}

// Submit stores a new quote. It starts unapproved and appears in the
// moderation queue.
func (s *QuoteService) Submit(ctx context.Context, actor Actor, author, text string) (*model.Quote, error) {
	author, text, err := validateQuote(author, text, actor.Name)
	if err != nil {
		return nil, err
	}

	quote := &model.Quote{Author: author, Text: text, SubmitterID: actor.UserID}
	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("service/quote: creating quote: %w", err)
	}

	s.mod.Record(ctx, actor.Name, model.ActionQuoteSubmit, modlog.QuoteTarget(quote.ID))
	s.logger.Info("quote submitted", "quote_id", quote.ID, "submitter", actor.Name)
	return quote, nil
}

// Get returns one quote. Unapproved quotes are only visible to moderators and
// to whoever submitted them; everyone else gets not found.
func (s *QuoteService) Get(ctx context.Context, actor Actor, id int64) (*model.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !quote.Approved && !canSeePending(actor, quote) {
		return nil, apperror.NotFound("quote", id)
	}

	s.ledger.Reconcile(ctx, quote)
	return quote, nil
}

func canSeePending(actor Actor, quote *model.Quote) bool {
	if actor.Can(permission.ApproveQuotes) || actor.Can(permission.EditQuotes) {
		return true
	}
	return !actor.Anonymous() && quote.SubmitterID == actor.UserID
}

// HasVoted reports whether actor has voted for quoteID. Anonymous actors
// never have.
func (s *QuoteService) HasVoted(ctx context.Context, actor Actor, quoteID int64) (bool, error) {
	if actor.Anonymous() {
		return false, nil
	}
	voted, err := s.votes.VotedFor(ctx, actor.UserID, []int64{quoteID})
	if err != nil {
		return false, err
	}
	return voted[quoteID], nil
}

// List returns a page of approved quotes in the given order.
func (s *QuoteService) List(ctx context.Context, actor Actor, sort model.QuoteSort, page int) (*QuotePage, error) {
	return s.listing(ctx, actor, true, sort, page)
}

// Queue returns a page of quotes waiting for approval, oldest first.
func (s *QuoteService) Queue(ctx context.Context, actor Actor, page int) (*QuotePage, error) {
	return s.listing(ctx, actor, false, model.SortOldest, page)
}

func (s *QuoteService) listing(ctx context.Context, actor Actor, approved bool, sort model.QuoteSort, page int) (*QuotePage, error) {
	if page < 1 {
		page = 1
	}

	total, err := s.quotes.Count(ctx, approved)
	if err != nil {
		return nil, fmt.Errorf("service/quote: counting quotes: %w", err)
	}
	quotes, err := s.quotes.List(ctx, repository.QuoteListOptions{
		ListOptions: PageOptions(page),
		Approved:    approved,
		Sort:        sort,
	})
	if err != nil {
		return nil, fmt.Errorf("service/quote: listing quotes: %w", err)
	}

	voted := map[int64]bool{}
	if !actor.Anonymous() && len(quotes) > 0 {
		ids := make([]int64, len(quotes))
		for i, q := range quotes {
			ids[i] = q.ID
		}
		if voted, err = s.votes.VotedFor(ctx, actor.UserID, ids); err != nil {
			return nil, fmt.Errorf("service/quote: loading votes: %w", err)
		}
	}

	return &QuotePage{
		Quotes:     quotes,
		Voted:      voted,
		Sort:       sort,
		Page:       page,
		TotalPages: totalPages(total),
	}, nil
}

// Edit changes author and text. Approval and votes are untouched.
func (s *QuoteService) Edit(ctx context.Context, actor Actor, id int64, author, text string) (*model.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	author, text, err = validateQuote(author, text, quote.Author)
	if err != nil {
		return nil, err
	}
	quote.Author, quote.Text = author, text

	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, err
	}

	s.mod.Record(ctx, actor.Name, model.ActionQuoteEdit, modlog.QuoteTarget(id))
	return quote, nil
}

// Delete removes a quote and its votes. Holders of delete_quotes may delete
// any quote; everyone else only their own.
func (s *QuoteService) Delete(ctx context.Context, actor Actor, id int64) error {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		return err
	}

	own := !actor.Anonymous() && quote.SubmitterID == actor.UserID
	if !own && !actor.Can(permission.DeleteQuotes) {
		return apperror.Forbidden("you can only delete your own quotes")
	}

	if err := s.quotes.Delete(ctx, id); err != nil {
		return err
	}

	s.mod.Record(ctx, actor.Name, model.ActionQuoteDelete, modlog.QuoteTarget(id))
	s.logger.Info("quote deleted", "quote_id", id, "by", actor.Name, "own", own)
	return nil
}

// SetApproved approves or unapproves a quote.
func (s *QuoteService) SetApproved(ctx context.Context, actor Actor, id int64, approved bool) error {
	if err := s.quotes.SetApproved(ctx, id, approved); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/quote: setting approval of %d: %w", id, err)
	}

	action := model.ActionQuoteApprove
	if !approved {
		action = model.ActionQuoteUnapprove
	}
	s.mod.Record(ctx, actor.Name, action, modlog.QuoteTarget(id))
	return nil
}
