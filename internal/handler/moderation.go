package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/modlog"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// ModerationHandler serves the approval queue and the moderation log.
type ModerationHandler struct {
	pages
	quotes *service.QuoteService
	log    *modlog.Log
}

func NewModerationHandler(quotes *service.QuoteService, log *modlog.Log, views view.Renderer, logger *slog.Logger) *ModerationHandler {
	return &ModerationHandler{
		pages:  pages{views: views, logger: logger},
		quotes: quotes,
		log:    log,
	}
}

type modlogData struct {
	Entries []model.ModLogEntry
	Page    int
	HasNext bool
}

// HandleQueue lists quotes awaiting approval, oldest first.
//
// HTTP: GET /modq?page=N
func (h *ModerationHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	result, err := h.quotes.Queue(r.Context(), actor(r), pageParam(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "quotes", "Moderation queue", listData{
		Heading:    "Moderation queue",
		BasePath:   "/modq",
		Page:       result,
		Moderation: true,
	})
}

// HandleApprove makes a quote public.
//
// HTTP: POST /quote/{id}/approve
func (h *ModerationHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.setApproved(w, r, true, "Quote approved.")
}

// HandleUnapprove sends a quote back to the queue.
//
// HTTP: POST /quote/{id}/unapprove
func (h *ModerationHandler) HandleUnapprove(w http.ResponseWriter, r *http.Request) {
	h.setApproved(w, r, false, "Quote moved back to the queue.")
}

func (h *ModerationHandler) setApproved(w http.ResponseWriter, r *http.Request, approved bool, notice string) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.quotes.SetApproved(r.Context(), actor(r), id, approved); err != nil {
		h.renderError(w, r, err)
		return
	}
	back(w, r, "/quote/"+strconv.FormatInt(id, 10), notice)
}

// HandleModLog renders the moderation log, newest first.
//
// HTTP: GET /modlog?page=N
func (h *ModerationHandler) HandleModLog(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	opts := service.PageOptions(page)
	opts.Limit++ // one extra row tells us whether there is a next page

	entries, err := h.log.List(r.Context(), opts)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	hasNext := len(entries) > service.PageSize
	if hasNext {
		entries = entries[:service.PageSize]
	}

	h.render(w, r, http.StatusOK, "modlog", "Moderation log", modlogData{
		Entries: entries,
		Page:    page,
		HasNext: hasNext,
	})
}
