package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// The fakes below are in-memory stand-ins for the repository interfaces.
// They keep the same error contract as the SQLite store (NotFound, the
// USERNAME_TAKEN / ALREADY_VOTED / NOT_VOTED conflicts) so the services see
// the same failures they would in production.

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User), nextID: 1}
}

func (f *fakeUserRepo) nameTaken(name string, except int64) bool {
	for id, u := range f.users {
		if id != except && strings.EqualFold(u.Name, name) {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameTaken(user.Name, 0) {
		return apperror.Conflict(apperror.CodeUsernameTaken, "username taken")
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByName(_ context.Context, name string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Name, name) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", name)
}

func (f *fakeUserRepo) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GitHubID != 0 && u.GitHubID == githubID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", githubID)
}

func (f *fakeUserRepo) List(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	if f.nameTaken(user.Name, user.ID) {
		return apperror.Conflict(apperror.CodeUsernameTaken, "username taken")
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

// fakeLedger holds quotes and votes together so that deleting a quote can
// drop its votes, as the foreign key does in SQLite.
type fakeLedger struct {
	mu     sync.Mutex
	quotes map[int64]*model.Quote
	votes  map[[2]int64]bool // {userID, quoteID}
	nextID int64

	recountErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		quotes: make(map[int64]*model.Quote),
		votes:  make(map[[2]int64]bool),
		nextID: 1,
	}
}

func (f *fakeLedger) Quotes() *fakeQuoteRepo { return (*fakeQuoteRepo)(f) }
func (f *fakeLedger) Votes() *fakeVoteRepo   { return (*fakeVoteRepo)(f) }

// setRecountErr makes every recount fail until cleared.
func (f *fakeLedger) setRecountErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recountErr = err
}

// cached returns the stored upvote count of a quote.
func (f *fakeLedger) cached(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes[id].Upvotes
}

// setCached overwrites the stored count, simulating drift.
func (f *fakeLedger) setCached(id int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[id].Upvotes = n
}

func (f *fakeLedger) liveCount(quoteID int64) int {
	n := 0
	for k := range f.votes {
		if k[1] == quoteID {
			n++
		}
	}
	return n
}

type fakeQuoteRepo fakeLedger

func (r *fakeQuoteRepo) Create(_ context.Context, quote *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quote.ID = r.nextID
	r.nextID++
	quote.Approved = false
	quote.Upvotes = 0
	quote.CreatedAt = time.Now().Add(time.Duration(quote.ID) * time.Millisecond)
	quote.UpdatedAt = quote.CreatedAt
	copied := *quote
	r.quotes[quote.ID] = &copied
	return nil
}

func (r *fakeQuoteRepo) GetByID(_ context.Context, id int64) (*model.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok {
		return nil, apperror.NotFound("quote", id)
	}
	copied := *q
	return &copied, nil
}

func (r *fakeQuoteRepo) List(_ context.Context, opts repository.QuoteListOptions) ([]model.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Quote
	for _, q := range r.quotes {
		if q.Approved == opts.Approved {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		switch opts.Sort {
		case model.SortOldest:
			return out[i].ID < out[j].ID
		case model.SortTop:
			if out[i].Upvotes != out[j].Upvotes {
				return out[i].Upvotes > out[j].Upvotes
			}
		}
		return out[i].ID > out[j].ID
	})
	return page(out, opts.ListOptions), nil
}

func (r *fakeQuoteRepo) Count(_ context.Context, approved bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.quotes {
		if q.Approved == approved {
			n++
		}
	}
	return n, nil
}

func (r *fakeQuoteRepo) Update(_ context.Context, quote *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[quote.ID]
	if !ok {
		return apperror.NotFound("quote", quote.ID)
	}
	q.Author, q.Text = quote.Author, quote.Text
	return nil
}

func (r *fakeQuoteRepo) SetApproved(_ context.Context, id int64, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok {
		return apperror.NotFound("quote", id)
	}
	q.Approved = approved
	return nil
}

func (r *fakeQuoteRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotes[id]; !ok {
		return apperror.NotFound("quote", id)
	}
	delete(r.quotes, id)
	for k := range r.votes {
		if k[1] == id {
			delete(r.votes, k)
		}
	}
	return nil
}

func (r *fakeQuoteRepo) RecountVotes(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recountErr != nil {
		return 0, r.recountErr
	}
	q, ok := r.quotes[id]
	if !ok {
		return 0, apperror.NotFound("quote", id)
	}
	q.Upvotes = (*fakeLedger)(r).liveCount(id)
	return q.Upvotes, nil
}

func (r *fakeQuoteRepo) RecountAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recountErr != nil {
		return 0, r.recountErr
	}
	var fixed int64
	for id, q := range r.quotes {
		if live := (*fakeLedger)(r).liveCount(id); live != q.Upvotes {
			q.Upvotes = live
			fixed++
		}
	}
	return fixed, nil
}

type fakeVoteRepo fakeLedger

func (r *fakeVoteRepo) Create(_ context.Context, vote *model.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotes[vote.QuoteID]; !ok {
		return apperror.NotFound("quote", vote.QuoteID)
	}
	key := [2]int64{vote.UserID, vote.QuoteID}
	if r.votes[key] {
		return apperror.Conflict(apperror.CodeAlreadyVoted, "you have already voted for this quote")
	}
	r.votes[key] = true
	return nil
}

func (r *fakeVoteRepo) Delete(_ context.Context, userID, quoteID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{userID, quoteID}
	if !r.votes[key] {
		return apperror.Conflict(apperror.CodeNotVoted, "you have not voted for this quote")
	}
	delete(r.votes, key)
	return nil
}

func (r *fakeVoteRepo) Count(_ context.Context, quoteID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (*fakeLedger)(r).liveCount(quoteID), nil
}

func (r *fakeVoteRepo) VotedFor(_ context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range quoteIDs {
		if r.votes[[2]int64{userID, id}] {
			out[id] = true
		}
	}
	return out, nil
}

func page[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// fakeRecorder captures moderation log entries.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []model.ModLogEntry
}

func (r *fakeRecorder) Record(_ context.Context, actor string, action model.ModAction, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, model.ModLogEntry{Actor: actor, Action: action, Target: target})
}

func (r *fakeRecorder) actions() []model.ModAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ModAction, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

// testPasswords uses the minimum bcrypt cost to keep tests fast.
func testPasswords(t *testing.T) *auth.PasswordService {
	t.Helper()
	return auth.NewPasswordServiceWithCost(4)
}

// fixture wires every service against shared fakes.
type fixture struct {
	users  *fakeUserRepo
	ledger *fakeLedger
	mod    *fakeRecorder

	auth   *AuthService
	votes  *VoteService
	quotes *QuoteService
	admin  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:  newFakeUserRepo(),
		ledger: newFakeLedger(),
		mod:    &fakeRecorder{},
	}
	logger := discardLogger()
	passwords := testPasswords(t)

	f.auth = NewAuthService(f.users, passwords, logger)
	f.votes = NewVoteService(f.ledger.Quotes(), f.ledger.Votes(), logger)
	f.quotes = NewQuoteService(f.ledger.Quotes(), f.ledger.Votes(), f.votes, f.mod, logger)
	f.admin = NewUserService(f.users, passwords, f.mod, logger)
	return f
}

// register creates a user and returns it as an Actor.
func (f *fixture) register(t *testing.T, name string) Actor {
	t.Helper()
	u, err := f.auth.Register(context.Background(), name, "password123")
	if err != nil {
		t.Fatalf("Register(%q): %v", name, err)
	}
	return Actor{UserID: u.ID, Name: u.Name, Mask: u.Flags}
}

// approvedQuote submits a quote as actor and approves it.
func (f *fixture) approvedQuote(t *testing.T, actor Actor, text string) *model.Quote {
	t.Helper()
	ctx := context.Background()
	q, err := f.quotes.Submit(ctx, actor, "", text)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.ledger.Quotes().SetApproved(ctx, q.ID, true); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}
	q.Approved = true
	return q
}
