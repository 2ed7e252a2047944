package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// QuoteHandler serves the public listings, single quote pages and the
// submit/edit/delete forms.
type QuoteHandler struct {
	pages
	quotes *service.QuoteService
}

func NewQuoteHandler(quotes *service.QuoteService, views view.Renderer, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		pages:  pages{views: views, logger: logger},
		quotes: quotes,
	}
}

type listData struct {
	Heading    string
	BasePath   string
	Page       *service.QuotePage
	Moderation bool
}

type quoteData struct {
	Quote     *model.Quote
	Voted     bool
	CanDelete bool
}

type quoteFormData struct {
	Action  string
	Author  string
	Text    string
	Editing bool
}

var sortHeadings = map[model.QuoteSort]string{
	model.SortNewest: "Newest quotes",
	model.SortOldest: "Oldest quotes",
	model.SortTop:    "Top quotes",
}

// HandleList renders a page of approved quotes.
//
// HTTP: GET /, GET /quotes, GET /quotes/{sort}?page=N
func (h *QuoteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sort := model.ParseQuoteSort(chi.URLParam(r, "sort"))

	result, err := h.quotes.List(r.Context(), actor(r), sort, pageParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "quotes", sortHeadings[sort], listData{
		Heading:  sortHeadings[sort],
		BasePath: "/quotes/" + string(sort),
		Page:     result,
	})
}

// HandleShow renders one quote.
//
// HTTP: GET /quote/{id}
func (h *QuoteHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	me := actor(r)
	q, err := h.quotes.Get(r.Context(), me, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	voted, err := h.quotes.HasVoted(r.Context(), me, id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "quote", "Quote #"+strconv.FormatInt(id, 10), quoteData{
		Quote:     q,
		Voted:     voted,
		CanDelete: me.Can(permission.DeleteQuotes) || (!me.Anonymous() && q.SubmitterID == me.UserID),
	})
}

// HandleNewForm renders the submission form.
//
// HTTP: GET /quote/new
func (h *QuoteHandler) HandleNewForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "quote_form", "Submit a quote", quoteFormData{Action: "/quote/new"})
}

// HandleCreate submits a quote to the moderation queue.
//
// HTTP: POST /quote/new (form: author, quote)
func (h *QuoteHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	author, text := r.PostFormValue("author"), r.PostFormValue("quote")

	q, err := h.quotes.Submit(r.Context(), actor(r), author, text)
	if err != nil {
		h.renderForm(w, r, "quote_form", "Submit a quote",
			quoteFormData{Action: "/quote/new", Author: author, Text: text}, err)
		return
	}
	redirect(w, r, "/quote/"+strconv.FormatInt(q.ID, 10), "Thanks! Your quote is waiting for approval.")
}

// HandleEditForm renders the edit form for a quote.
//
// HTTP: GET /quote/{id}/edit
func (h *QuoteHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	q, err := h.quotes.Get(r.Context(), actor(r), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "quote_form", "Edit quote", quoteFormData{
		Action:  "/quote/" + strconv.FormatInt(id, 10) + "/edit",
		Author:  q.Author,
		Text:    q.Text,
		Editing: true,
	})
}

// HandleUpdate saves an edited quote.
//
// HTTP: POST /quote/{id}/edit (form: author, quote)
func (h *QuoteHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	author, text := r.PostFormValue("author"), r.PostFormValue("quote")
	path := "/quote/" + strconv.FormatInt(id, 10)

	if _, err := h.quotes.Edit(r.Context(), actor(r), id, author, text); err != nil {
		h.renderForm(w, r, "quote_form", "Edit quote",
			quoteFormData{Action: path + "/edit", Author: author, Text: text, Editing: true}, err)
		return
	}
	redirect(w, r, path, "Quote updated.")
}

// HandleDelete deletes a quote the caller owns or may moderate.
//
// HTTP: POST /quote/{id}/delete
func (h *QuoteHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.quotes.Delete(r.Context(), actor(r), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	redirect(w, r, "/", "Quote deleted.")
}
