package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/quoteboard/internal/flash"
	"github.com/sakif/quoteboard/internal/permission"
)

func voteRouter(h *VoteHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/upvote/{id}", h.HandleUpvote)
	r.Post("/unvote/{id}", h.HandleUnvote)
	return r
}

func TestVote_Programmatic(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", permission.Default)
	q := e.approvedQuote(t, alice.UserID, "hello")
	router := voteRouter(NewVoteHandler(e.votes, e.views, e.logger))

	post := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := xhr(as(httptest.NewRequest(http.MethodPost, path, nil), alice))
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(fmt.Sprintf("/upvote/%d", q.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"quote_id":%d,"votes_now":1}`, q.ID), rec.Body.String())

	rec = post(fmt.Sprintf("/upvote/%d", q.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"ALREADY_VOTED"`)

	rec = post(fmt.Sprintf("/unvote/%d", q.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"quote_id":%d,"votes_now":0}`, q.ID), rec.Body.String())

	rec = post(fmt.Sprintf("/unvote/%d", q.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"NOT_VOTED"`)

	rec = post("/upvote/9999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"not_found"`)

	rec = post("/upvote/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVote_InteractiveGoesBack(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", permission.Default)
	q := e.approvedQuote(t, alice.UserID, "hello")
	router := voteRouter(NewVoteHandler(e.votes, e.views, e.logger))

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := as(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/upvote/%d", q.ID), nil), alice)
		req.Header.Set("Referer", "http://example.com/quotes/top?page=2")
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/quotes/top?page=2", rec.Header().Get("Location"))
	assert.Contains(t, noticeOf(rec), "Vote counted")

	// A second vote is not an error page; the user is sent back with the reason.
	rec = post()
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/quotes/top?page=2", rec.Header().Get("Location"))
	assert.Contains(t, noticeOf(rec), "already voted")
	assert.Empty(t, e.views.calls)
}

func TestVote_InteractiveMissingQuoteRendersError(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice", permission.Default)
	router := voteRouter(NewVoteHandler(e.votes, e.views, e.logger))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/upvote/42", nil), alice))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	call := e.views.last(t)
	assert.Equal(t, "error", call.page)
	assert.Equal(t, http.StatusNotFound, call.status)
}

// noticeOf reads the flash notice a response would leave in the browser.
func noticeOf(rec *httptest.ResponseRecorder) string {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return flash.Take(httptest.NewRecorder(), req)
}
