// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/sakif/quoteboard/internal/permission"
)

// User is a registered account.
//
// Name is unique case-insensitively ("Alice" and "alice" are the same
// account). Flags holds the permission bitmask; it is only ever changed by
// registration (which assigns permission.Default) or by a moderator holding
// set_flags.
//
// GitHubID is zero for accounts that never signed in with GitHub.
type User struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Flags        permission.Mask `json:"flags"`
	GitHubID     int64           `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
