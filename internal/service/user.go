package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/modlog"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/repository"
)

const msgBadFlags = "The new flags were not a valid number."

// UserService is account administration as seen by moderators: listing,
// permission changes, renames and deletion. Every mutation is recorded in the
// moderation log.
//
// Changing a user's flags does not touch sessions they already hold; the new
// mask applies from their next login.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	mod       Recorder
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, mod Recorder, logger *slog.Logger) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		mod:       mod,
		logger:    logger,
	}
}

// List returns one page of users in name order and whether another page
// follows.
func (s *UserService) List(ctx context.Context, page int) ([]model.User, bool, error) {
	opts := PageOptions(page)
	opts.Limit++
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, false, err
	}
	if len(users) > PageSize {
		return users[:PageSize], true, nil
	}
	return users, false, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// ParseFlags reads a flags form value. It must be a non-negative integer made
// only of known permission bits.
func ParseFlags(raw string) (permission.Mask, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, apperror.ValidationFailed("flags", msgBadFlags)
	}
	m := permission.Mask(n)
	if !m.Valid() {
		return 0, apperror.ValidationFailed("flags", msgBadFlags)
	}
	return m, nil
}

// SetFlags replaces a user's permission mask.
func (s *UserService) SetFlags(ctx context.Context, actor Actor, id int64, flags permission.Mask) (*model.User, error) {
	if !flags.Valid() {
		return nil, apperror.ValidationFailed("flags", msgBadFlags)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := user.Flags
	user.Flags = flags

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.mod.Record(ctx, actor.Name, model.ActionUserFlags,
		fmt.Sprintf("%s: %s → %s", modlog.UserTarget(id, user.Name), before, flags))
	s.logger.Info("user flags changed", "user_id", id, "by", actor.Name, "from", before, "to", flags)
	return user, nil
}

// Edit renames a user and, if password is non-empty, resets their password.
func (s *UserService) Edit(ctx context.Context, actor Actor, id int64, name, password string) (*model.User, error) {
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := user.Name
	user.Name = name

	if password != "" {
		if err := validatePassword(password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("service/user: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	target := modlog.UserTarget(id, oldName)
	if oldName != name {
		target += " renamed to " + name
	}
	if password != "" {
		target += ", password reset"
	}
	s.mod.Record(ctx, actor.Name, model.ActionUserEdit, target)
	return user, nil
}

// Delete removes a user. Their votes go with them; their quotes stay.
func (s *UserService) Delete(ctx context.Context, actor Actor, id int64) error {
	if id == actor.UserID {
		return apperror.ValidationFailed("id", "Use the account page to delete your own account.")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.mod.Record(ctx, actor.Name, model.ActionUserDelete, modlog.UserTarget(id, user.Name))
	s.logger.Info("user deleted", "user_id", id, "name", user.Name, "by", actor.Name)
	return nil
}
