package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// UserHandler serves account administration for moderators.
type UserHandler struct {
	pages
	users *service.UserService
}

func NewUserHandler(users *service.UserService, views view.Renderer, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		pages: pages{views: views, logger: logger},
		users: users,
	}
}

type usersData struct {
	Users   []model.User
	Page    int
	HasNext bool
}

// HandleList renders the user table with the flag editor.
//
// HTTP: GET /users?page=N
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	users, more, err := h.users.List(r.Context(), page)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "users", "Users", usersData{Users: users, Page: page, HasNext: more})
}

// HandleSetFlags replaces a user's permission mask.
//
// HTTP: POST /user/{id}/flags (form: flags, a decimal bitmask)
func (h *UserHandler) HandleSetFlags(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	flags, err := service.ParseFlags(r.PostFormValue("flags"))
	if err != nil {
		back(w, r, "/users", err.Error())
		return
	}

	user, err := h.users.SetFlags(r.Context(), actor(r), id, flags)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	back(w, r, "/users", "Flags for "+user.Name+" set to "+user.Flags.String()+".")
}

// HandleEditForm renders the rename/reset form.
//
// HTTP: GET /user/{id}/edit
func (h *UserHandler) HandleEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "user_edit", "Edit "+user.Name, user)
}

// HandleEdit renames a user and optionally resets their password.
//
// HTTP: POST /user/{id}/edit (form: name, password)
func (h *UserHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	name := r.PostFormValue("name")
	user, err := h.users.Edit(r.Context(), actor(r), id, name, r.PostFormValue("password"))
	if err != nil {
		current, getErr := h.users.Get(r.Context(), id)
		if getErr != nil {
			h.renderError(w, r, getErr)
			return
		}
		h.renderForm(w, r, "user_edit", "Edit "+current.Name, current, err)
		return
	}
	redirect(w, r, "/user/"+strconv.FormatInt(id, 10)+"/edit", "Saved "+user.Name+".")
}

// HandleDelete removes a user.
//
// HTTP: POST /user/{id}/delete
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), actor(r), id); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			back(w, r, "/users", err.Error())
			return
		}
		h.renderError(w, r, err)
		return
	}
	redirect(w, r, "/users", "User deleted.")
}
