package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/service"
)

// APIHandler is the JSON mirror of the quote pages. Its routes are marked
// programmatic, so auth denials come back as 401/403 JSON and never as
// redirects.
type APIHandler struct {
	quotes *service.QuoteService
	votes  *service.VoteService
	logger *slog.Logger
}

func NewAPIHandler(quotes *service.QuoteService, votes *service.VoteService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		quotes: quotes,
		votes:  votes,
		logger: logger,
	}
}

type quoteListResponse struct {
	Quotes     []model.Quote   `json:"quotes"`
	Voted      []int64         `json:"voted"`
	Sort       model.QuoteSort `json:"sort"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
}

type createQuoteRequest struct {
	Author string `json:"author"`
	Quote  string `json:"quote"`
}

type meResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Flags       uint32    `json:"flags"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// HandleListQuotes returns a page of approved quotes.
//
// HTTP: GET /api/quotes?sort=top&page=2
func (h *APIHandler) HandleListQuotes(w http.ResponseWriter, r *http.Request) {
	sort := model.ParseQuoteSort(r.URL.Query().Get("sort"))
	result, err := h.quotes.List(r.Context(), actor(r), sort, pageParam(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := quoteListResponse{
		Quotes:     result.Quotes,
		Voted:      []int64{},
		Sort:       result.Sort,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	}
	if resp.Quotes == nil {
		resp.Quotes = []model.Quote{}
	}
	for _, q := range result.Quotes {
		if result.Voted[q.ID] {
			resp.Voted = append(resp.Voted, q.ID)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetQuote returns one quote, applying the same visibility rules as
// the quote page.
//
// HTTP: GET /api/quotes/{id}
func (h *APIHandler) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := h.quotes.Get(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleCreateQuote submits a quote.
//
// HTTP: POST /api/quotes {"author": "...", "quote": "..."}
func (h *APIHandler) HandleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := h.quotes.Submit(r.Context(), actor(r), req.Author, req.Quote)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// HandleVote casts a vote.
//
// HTTP: POST /api/quotes/{id}/vote → {"quote_id": 1, "votes_now": 3}
func (h *APIHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.votes.Cast)
}

// HandleUnvote withdraws a vote.
//
// HTTP: DELETE /api/quotes/{id}/vote
func (h *APIHandler) HandleUnvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.votes.Remove)
}

func (h *APIHandler) vote(w http.ResponseWriter, r *http.Request, op voteFunc) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := op(r.Context(), actor(r).UserID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRecount repairs every stale upvote count.
//
// HTTP: POST /api/admin/recount → {"fixed": n}
func (h *APIHandler) HandleRecount(w http.ResponseWriter, r *http.Request) {
	fixed, err := h.votes.RepairAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("manual recount", "by", actor(r).Name, "fixed", fixed)
	writeJSON(w, http.StatusOK, map[string]int64{"fixed": fixed})
}

// HandleMe returns the caller's session snapshot. The permissions shown are
// those captured at login, not necessarily the current ones.
//
// HTTP: GET /api/me
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		// Unreachable behind Require(LoggedIn), kept for direct mounting.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   string(auth.ReasonNotLoggedIn),
			Message: auth.ReasonNotLoggedIn.Message(),
		})
		return
	}

	perms := make([]string, 0, 8)
	for _, p := range sess.Mask.Permissions() {
		perms = append(perms, p.String())
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:          sess.UserID,
		Name:        sess.Username,
		Flags:       uint32(sess.Mask),
		Permissions: perms,
		IssuedAt:    sess.IssuedAt,
	})
}
