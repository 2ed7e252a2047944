package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// VoteHandler serves the upvote buttons. The front-end script posts with
// X-Requested-With and gets {"votes_now": n}; without JavaScript the form
// posts normally and the browser is sent back to the page it came from.
type VoteHandler struct {
	pages
	votes *service.VoteService
}

func NewVoteHandler(votes *service.VoteService, views view.Renderer, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		pages: pages{views: views, logger: logger},
		votes: votes,
	}
}

type voteFunc func(ctx context.Context, userID, quoteID int64) (*service.VoteResult, error)

// HandleUpvote casts the caller's vote.
//
// HTTP: POST /upvote/{id}
func (h *VoteHandler) HandleUpvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.votes.Cast, "Vote counted.")
}

// HandleUnvote withdraws the caller's vote.
//
// HTTP: POST /unvote/{id}
func (h *VoteHandler) HandleUnvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.votes.Remove, "Vote removed.")
}

func (h *VoteHandler) vote(w http.ResponseWriter, r *http.Request, op voteFunc, notice string) {
	programmatic := auth.DetectClient(r) == auth.Programmatic

	id, err := idParam(r)
	if err == nil {
		var res *service.VoteResult
		res, err = op(r.Context(), actor(r).UserID, id)
		if err == nil {
			if programmatic {
				writeJSON(w, http.StatusOK, res)
				return
			}
			back(w, r, "/quote/"+strconv.FormatInt(id, 10), notice)
			return
		}
	}

	if programmatic {
		writeError(w, h.logger, err)
		return
	}
	// ALREADY_VOTED and NOT_VOTED are user-facing; show them where the
	// button was.
	if apperror.CodeOf(err) != "" {
		back(w, r, "/", err.Error())
		return
	}
	h.renderError(w, r, err)
}
