package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/sakif/quoteboard/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts in the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, name, password_hash, flags, github_id, created_at, updated_at`

// Create inserts a new user and fills in ID and timestamps.
//
// The name column is UNIQUE COLLATE NOCASE, so "Alice" after "alice" fails
// here rather than in a racy lookup beforehand.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (name, password_hash, flags, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name,
		user.PasswordHash,
		int64(user.Flags),
		nullableID(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(apperror.CodeUsernameTaken,
				"The username has already been taken! Try another one!")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id

	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return user, nil
}

// GetByName looks a user up case-insensitively.
func (u *UserDB) GetByName(ctx context.Context, name string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE name = ? COLLATE NOCASE`, name)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %q: %w", name, err)
	}
	return user, nil
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("github user", githubID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return user, nil
}

// List returns users ordered by name.
func (u *UserDB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit, offset := clampList(opts)

	rows, err := u.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY name COLLATE NOCASE LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// Update writes name, password hash and flags.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, password_hash = ?, flags = ?, updated_at = ? WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		int64(user.Flags),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(apperror.CodeUsernameTaken,
				"The username has already been taken! Try another one!")
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	return expectOneRow(res, "user", user.ID)
}

// Delete removes the user. Their votes go with them (ON DELETE CASCADE) and
// their quotes stay, with submitter_id cleared. Counts on the quotes they
// voted for are recomputed without those votes in the same transaction.
func (u *UserDB) Delete(ctx context.Context, id int64) error {
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning user delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE quotes
		 SET upvotes = (SELECT COUNT(*) FROM votes WHERE votes.quote_id = quotes.id AND votes.user_id <> ?)
		 WHERE id IN (SELECT quote_id FROM votes WHERE user_id = ?)`, id, id); err != nil {
		return fmt.Errorf("sqlite: recounting votes of user %d: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	if err := expectOneRow(res, "user", id); err != nil {
		return err
	}
	return tx.Commit()
}

// accountGone is returned when a still-valid session writes on behalf of a
// user that has since been deleted.
func accountGone(id int64) error {
	return apperror.Unauthorized(apperror.CodeAccountGone,
		fmt.Sprintf("Account #%d no longer exists. Please log in again.", id))
}

func userExists(ctx context.Context, conn *sql.DB, id int64) (bool, error) {
	var ok bool
	err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking user %d: %w", id, err)
	}
	return ok, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user     model.User
		flags    int64
		githubID sql.NullInt64
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.PasswordHash,
		&flags,
		&githubID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Flags = permission.Mask(flags)
	user.GitHubID = githubID.Int64
	return &user, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func expectOneRow(res sql.Result, resource string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
