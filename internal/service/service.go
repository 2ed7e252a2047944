// Package service contains the business rules of the quote board.
//
// THE LAYERS:
//
//	Handler (HTTP)     → parses requests, renders pages or JSON
//	Service (rules)    → validates input, checks ownership, records moderation
//	Repository (data)  → reads/writes SQLite
//
// Services take an Actor (who is asking) and plain values, never an
// *http.Request. Route-level permissions are enforced before a service is
// called by the auth gate; services only add the checks the gate cannot make
// because they depend on the data (for example "is this your own quote?").
package service

import (
	"context"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/repository"
)

// PageSize is the number of items per listing page.
const PageSize = 20

// Actor is the caller of a service method. The zero value is an anonymous
// visitor.
type Actor struct {
	UserID int64
	Name   string
	Mask   permission.Mask
}

// ActorFromSession builds an Actor from a (possibly nil) session.
func ActorFromSession(s *auth.Session) Actor {
	if s == nil {
		return Actor{}
	}
	return Actor{UserID: s.UserID, Name: s.Username, Mask: s.Mask}
}

// Anonymous reports whether the actor is not logged in.
func (a Actor) Anonymous() bool { return a.UserID == 0 }

// Can reports whether the actor's snapshot holds p.
func (a Actor) Can(p permission.Permission) bool {
	return !a.Anonymous() && permission.Has(a.Mask, p)
}

// Recorder writes moderation log entries. *modlog.Log implements it.
type Recorder interface {
	Record(ctx context.Context, actor string, action model.ModAction, target string)
}

// PageOptions converts a 1-based page number into list options.
func PageOptions(page int) repository.ListOptions {
	if page < 1 {
		page = 1
	}
	return repository.ListOptions{Limit: PageSize, Offset: (page - 1) * PageSize}
}

func totalPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}
