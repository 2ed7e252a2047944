package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/metrics"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

// VoteResult is what a voter sees after casting or removing a vote.
//
// CountStale is true when the vote itself was stored but the quote's cached
// count could not be recomputed. Votes then holds the best estimate and a
// later repair will correct the stored count.
type VoteResult struct {
	QuoteID    int64 `json:"quote_id"`
	Votes      int   `json:"votes_now"`
	CountStale bool  `json:"count_stale,omitempty"`
}

// VoteService is the vote ledger: at most one vote per (user, quote), and a
// cached upvote count that always follows the votes table.
//
// HOW DUPLICATES ARE PREVENTED:
// The votes table has UNIQUE (user_id, quote_id). Cast simply inserts; a
// duplicate insert fails inside the store with ALREADY_VOTED. No code path
// reads "has this user voted?" and then writes based on the answer, so two
// concurrent clicks cannot both get through.
//
// HOW THE COUNT STAYS RIGHT:
// After every vote change the count is recomputed as COUNT(*) of the votes
// table, never incremented. If that recompute fails, the vote stands (it is
// what the user asked for), the failure is logged and counted, and one of the
// repair paths fixes the count later:
//   - RepairAll at startup and from POST /api/admin/recount
//   - Reconcile whenever a single quote is displayed
//
// can_vote is checked by the auth gate before these methods run.
type VoteService struct {
	quotes repository.QuoteRepository
	votes  repository.VoteRepository
	logger *slog.Logger
}

func NewVoteService(quotes repository.QuoteRepository, votes repository.VoteRepository, logger *slog.Logger) *VoteService {
	return &VoteService{
		quotes: quotes,
		votes:  votes,
		logger: logger,
	}
}

// Cast records userID's vote for quoteID. Only approved quotes can be voted
// on; anything else reads as not found.
func (s *VoteService) Cast(ctx context.Context, userID, quoteID int64) (*VoteResult, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !quote.Approved {
		return nil, apperror.NotFound("quote", quoteID)
	}

	if err := s.votes.Create(ctx, &model.Vote{UserID: userID, QuoteID: quoteID}); err != nil {
		metrics.VotesTotal.WithLabelValues("cast", outcome(err)).Inc()
		return nil, err
	}
	metrics.VotesTotal.WithLabelValues("cast", "ok").Inc()

	return s.recount(ctx, quoteID, quote.Upvotes+1), nil
}

// Remove withdraws userID's vote for quoteID.
func (s *VoteService) Remove(ctx context.Context, userID, quoteID int64) (*VoteResult, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	if err := s.votes.Delete(ctx, userID, quoteID); err != nil {
		metrics.VotesTotal.WithLabelValues("remove", outcome(err)).Inc()
		return nil, err
	}
	metrics.VotesTotal.WithLabelValues("remove", "ok").Inc()

	estimate := quote.Upvotes - 1
	if estimate < 0 {
		estimate = 0
	}
	return s.recount(ctx, quoteID, estimate), nil
}

// recount refreshes the cached count after a vote change. It never fails:
// a failed recount is reported and leaves the result marked stale.
func (s *VoteService) recount(ctx context.Context, quoteID int64, estimate int) *VoteResult {
	n, err := s.quotes.RecountVotes(ctx, quoteID)
	if err != nil {
		metrics.VoteCountStaleTotal.Inc()
		s.logger.Warn("vote stored but upvote count not recomputed; count is stale until repaired",
			"quote_id", quoteID,
			"error", err,
		)
		return &VoteResult{QuoteID: quoteID, Votes: estimate, CountStale: true}
	}
	return &VoteResult{QuoteID: quoteID, Votes: n}
}

// Repair recomputes one quote's count.
func (s *VoteService) Repair(ctx context.Context, quoteID int64) (int, error) {
	n, err := s.quotes.RecountVotes(ctx, quoteID)
	if err != nil {
		return 0, fmt.Errorf("service/vote: repairing quote %d: %w", quoteID, err)
	}
	return n, nil
}

// RepairAll recomputes every count that disagrees with the votes table and
// returns how many were fixed.
func (s *VoteService) RepairAll(ctx context.Context) (int64, error) {
	fixed, err := s.quotes.RecountAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/vote: repairing all counts: %w", err)
	}
	if fixed > 0 {
		metrics.VoteCountRepairedTotal.Add(float64(fixed))
		s.logger.Warn("repaired stale upvote counts", "quotes", fixed)
	}
	return fixed, nil
}

// Reconcile is the on-read repair path. It compares q's cached count with the
// votes table and fixes both the store and q when they differ. Failures are
// logged; the caller still gets q.
func (s *VoteService) Reconcile(ctx context.Context, q *model.Quote) {
	live, err := s.votes.Count(ctx, q.ID)
	if err != nil {
		s.logger.Warn("could not check upvote count", "quote_id", q.ID, "error", err)
		return
	}
	if live == q.Upvotes {
		return
	}

	n, err := s.quotes.RecountVotes(ctx, q.ID)
	if err != nil {
		s.logger.Warn("could not repair upvote count", "quote_id", q.ID, "cached", q.Upvotes, "live", live, "error", err)
		q.Upvotes = live
		return
	}
	metrics.VoteCountRepairedTotal.Inc()
	s.logger.Info("repaired upvote count on read", "quote_id", q.ID, "was", q.Upvotes, "now", n)
	q.Upvotes = n
}

// outcome labels a failed vote operation for metrics.
func outcome(err error) string {
	switch apperror.CodeOf(err) {
	case apperror.CodeAlreadyVoted:
		return "already_voted"
	case apperror.CodeNotVoted:
		return "not_voted"
	}
	return "error"
}
