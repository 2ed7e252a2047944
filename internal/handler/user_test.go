package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/service"
)

func userRouter(e *env) http.Handler {
	users := service.NewUserService(e.db.Users(), auth.NewPasswordServiceWithCost(4), e.modLog, e.logger)
	h := NewUserHandler(users, e.views, e.logger)

	r := chi.NewRouter()
	r.Get("/users", h.HandleList)
	r.Post("/user/{id}/flags", h.HandleSetFlags)
	r.Post("/user/{id}/delete", h.HandleDelete)
	return r
}

func TestSetFlags_Handler(t *testing.T) {
	e := newEnv(t)
	admin := e.user(t, "admin", permission.Full())
	bob := e.user(t, "bob1", permission.Default)
	router := userRouter(e)
	path := fmt.Sprintf("/user/%d/flags", bob.UserID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postForm(path, url.Values{"flags": {"lots"}}, admin))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users", rec.Header().Get("Location"))
	assert.Equal(t, "The new flags were not a valid number.", noticeOf(rec))

	stored, err := e.db.Users().GetByID(context.Background(), bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, permission.Default, stored.Flags, "rejected input leaves flags alone")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postForm(path, url.Values{"flags": {"17"}}, admin))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	stored, err = e.db.Users().GetByID(context.Background(), bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, permission.Of(permission.PostQuotes, permission.ApproveQuotes), stored.Flags)
}

func TestDeleteUser_SelfGoesBack(t *testing.T) {
	e := newEnv(t)
	admin := e.user(t, "admin", permission.Full())
	router := userRouter(e)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postForm(fmt.Sprintf("/user/%d/delete", admin.UserID), url.Values{}, admin))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotEmpty(t, noticeOf(rec))

	_, err := e.db.Users().GetByID(context.Background(), admin.UserID)
	assert.NoError(t, err)
}

func TestListUsers_Handler(t *testing.T) {
	e := newEnv(t)
	admin := e.user(t, "admin", permission.Full())
	e.user(t, "bob1", permission.Default)
	router := userRouter(e)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, as(httptest.NewRequest(http.MethodGet, "/users", nil), admin))
	require.Equal(t, http.StatusOK, rec.Code)

	data := e.views.last(t).data.Data.(usersData)
	assert.Len(t, data.Users, 2)
	assert.False(t, data.HasNext)
	assert.Equal(t, 1, data.Page)
}
