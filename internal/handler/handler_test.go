package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/metrics"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/modlog"
	"github.com/sakif/quoteboard/internal/permission"
	sqliteRepo "github.com/sakif/quoteboard/internal/repository/sqlite"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// fakeRenderer records what would have been rendered instead of executing
// templates.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

type renderCall struct {
	page   string
	status int
	data   view.Page
}

func (f *fakeRenderer) Render(w http.ResponseWriter, status int, page string, data view.Page) {
	f.mu.Lock()
	f.calls = append(f.calls, renderCall{page: page, status: status, data: data})
	f.mu.Unlock()
	w.WriteHeader(status)
}

func (f *fakeRenderer) last(t *testing.T) renderCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "nothing was rendered")
	return f.calls[len(f.calls)-1]
}

// env is a real service stack over an in-memory database.
type env struct {
	db     *sqliteRepo.DB
	views  *fakeRenderer
	logger *slog.Logger
	votes  *service.VoteService
	quotes *service.QuoteService
	modLog *modlog.Log
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	votes := service.NewVoteService(db.Quotes(), db.Votes(), logger)
	modLog := modlog.New(db.ModLog(), logger, metrics.ModLogFailuresTotal)

	return &env{
		db:     db,
		views:  &fakeRenderer{},
		logger: logger,
		votes:  votes,
		quotes: service.NewQuoteService(db.Quotes(), db.Votes(), votes, modLog, logger),
		modLog: modLog,
	}
}

// user stores an account with mask and returns a fresh session for it.
func (e *env) user(t *testing.T, name string, mask permission.Mask) *auth.Session {
	t.Helper()
	u := &model.User{Name: name, PasswordHash: "unused", Flags: mask}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return auth.Start(u, time.Now())
}

func (e *env) approvedQuote(t *testing.T, submitter int64, text string) *model.Quote {
	t.Helper()
	ctx := context.Background()
	q := &model.Quote{Author: "someone", Text: text, SubmitterID: submitter}
	require.NoError(t, e.db.Quotes().Create(ctx, q))
	require.NoError(t, e.db.Quotes().SetApproved(ctx, q.ID, true))
	q.Approved = true
	return q
}

// as attaches sess to r the way auth.Middleware.Load would.
func as(r *http.Request, sess *auth.Session) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), sess))
}

func xhr(r *http.Request) *http.Request {
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	return r
}
