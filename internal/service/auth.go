package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/repository"
)

// Username rules.
const (
	MinUsernameLength = 4
	MaxUsernameLength = 16
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9\-_.]+$`)

const (
	msgUsernameBlank   = "The username can't be blank."
	msgUsernameCharset = "The username contains invalid characters! Use /A-Za-z0-9-_./"
	msgUsernameSize    = "The username is not the right size! Try 4-16 characters."
	msgPasswordBlank   = "The password can't be blank."
	msgPasswordLong    = "The password is too long! Use at most 72 bytes."
	msgBadCredentials  = "Invalid username or password."
)

// AuthService handles accounts from the owner's side: registration, login,
// password changes and self-deletion.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → account records
//   - passwords  *auth.PasswordService     → opaque hash/verify
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// ValidateUsername applies the charset and length rules. The uniqueness rule
// is enforced by the store.
func ValidateUsername(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", msgUsernameBlank)
	}
	if !usernamePattern.MatchString(name) {
		return apperror.ValidationFailed("name", msgUsernameCharset)
	}
	if n := utf8.RuneCountInString(name); n < MinUsernameLength || n > MaxUsernameLength {
		return apperror.ValidationFailed("name", msgUsernameSize)
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", msgPasswordBlank)
	}
	if len(password) > 72 {
		return apperror.ValidationFailed("password", msgPasswordLong)
	}
	return nil
}

// Register creates an account with permission.Default.
//
// There is deliberately no flags parameter. Whatever a client posts, a new
// account can only ever start with the default mask.
func (s *AuthService) Register(ctx context.Context, name, password string) (*model.User, error) {
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		PasswordHash: hash,
		Flags:        permission.Default,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "name", user.Name)
	return user, nil
}

// Authenticate checks a name/password pair. Unknown names and wrong passwords
// produce the same error.
func (s *AuthService) Authenticate(ctx context.Context, name, password string) (*model.User, error) {
	user, err := s.users.GetByName(ctx, name)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, msgBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %q: %w", name, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("failed login", "name", name)
			return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, msgBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}

	return user, nil
}

// ChangePassword replaces the password after checking the current one.
// Accounts created through GitHub have no password yet and may set one
// without a current password.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != "" {
		if err := s.passwords.Verify(user.PasswordHash, current); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return apperror.ValidationFailed("current", "The current password is wrong.")
			}
			return fmt.Errorf("service/auth: verifying password for user %d: %w", userID, err)
		}
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// DeleteAccount removes the caller's own account after confirming the
// password. Votes go with it; quotes stay.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash != "" {
		if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return apperror.ValidationFailed("password", "The password is wrong.")
			}
			return fmt.Errorf("service/auth: verifying password for user %d: %w", userID, err)
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("account deleted by owner", "user_id", userID, "name", user.Name)
	return nil
}

// LoginGitHub finds the account linked to a GitHub profile, creating one on
// first sign-in. New accounts get permission.Default like any registration.
func (s *AuthService) LoginGitHub(ctx context.Context, profile *auth.GitHubProfile) (*model.User, error) {
	if profile == nil || profile.ID == 0 {
		return nil, errors.New("service/auth: GitHub profile must have an id")
	}

	user, err := s.users.GetByGitHubID(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", profile.ID, err)
	}

	// The GitHub login may not satisfy local username rules, and may already
	// be taken by a password account. Try a few derived names.
	base := usernameFromLogin(profile.Login)
	for attempt := 0; attempt < 5; attempt++ {
		name := base
		if attempt > 0 {
			suffix := "-" + strconv.Itoa(attempt+1)
			if len(name)+len(suffix) > MaxUsernameLength {
				name = name[:MaxUsernameLength-len(suffix)]
			}
			name += suffix
		}

		user = &model.User{Name: name, GitHubID: profile.ID, Flags: permission.Default}
		err = s.users.Create(ctx, user)
		if err == nil {
			s.logger.Info("user registered via GitHub", "user_id", user.ID, "name", name, "github_id", profile.ID)
			return user, nil
		}
		if apperror.CodeOf(err) != apperror.CodeUsernameTaken {
			return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
		}
	}
	return nil, apperror.Conflict(apperror.CodeUsernameTaken,
		"Could not pick a free username for this GitHub account.")
}

// usernameFromLogin maps a GitHub login onto the local username rules.
func usernameFromLogin(login string) string {
	var b strings.Builder
	for _, r := range login {
		if r < utf8.RuneSelf && usernamePattern.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > MaxUsernameLength {
		name = name[:MaxUsernameLength]
	}
	for len(name) < MinUsernameLength {
		name += "_"
	}
	return name
}

// EnsureAdmin creates or promotes the bootstrap administrator so that a fresh
// install has an account holding every permission. An existing account's
// password is left alone.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, password string) error {
	user, err := s.users.GetByName(ctx, name)
	switch {
	case err == nil:
		if user.Flags == permission.Full() {
			return nil
		}
		user.Flags = permission.Full()
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("service/auth: promoting admin %q: %w", name, err)
		}
		s.logger.Warn("bootstrap admin promoted to full permissions", "user_id", user.ID, "name", name)
		return nil

	case errors.Is(err, apperror.ErrNotFound):
		if err := ValidateUsername(name); err != nil {
			return fmt.Errorf("service/auth: admin name: %w", err)
		}
		hash, err := s.passwords.Hash(password)
		if err != nil {
			return fmt.Errorf("service/auth: hashing admin password: %w", err)
		}
		admin := &model.User{Name: name, PasswordHash: hash, Flags: permission.Full()}
		if err := s.users.Create(ctx, admin); err != nil {
			return fmt.Errorf("service/auth: creating admin %q: %w", name, err)
		}
		s.logger.Info("bootstrap admin created", "user_id", admin.ID, "name", name)
		return nil

	default:
		return fmt.Errorf("service/auth: looking up admin %q: %w", name, err)
	}
}
