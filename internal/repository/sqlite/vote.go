package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

var _ repository.VoteRepository = (*VoteDB)(nil)

// VoteDB stores votes in the votes table.
type VoteDB struct {
	conn *sql.DB
}

// Create inserts a vote.
//
// There is deliberately no "SELECT ... then INSERT" here. Two requests from a
// double-clicked button can both pass such a check; only one can pass the
// UNIQUE (user_id, quote_id) constraint.
func (v *VoteDB) Create(ctx context.Context, vote *model.Vote) error {
	vote.CreatedAt = time.Now().UTC()

	res, err := v.conn.ExecContext(ctx,
		`INSERT INTO votes (user_id, quote_id, created_at) VALUES (?, ?, ?)`,
		vote.UserID, vote.QuoteID, vote.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict(apperror.CodeAlreadyVoted, "you have already voted for this quote")
		case isForeignKeyViolation(err):
			return v.missingParent(ctx, vote)
		}
		return fmt.Errorf("sqlite: creating vote (user=%d, quote=%d): %w", vote.UserID, vote.QuoteID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading vote id: %w", err)
	}
	vote.ID = id
	return nil
}

// missingParent works out which side of a FOREIGN KEY failure is gone: the
// voter's account or the quote.
func (v *VoteDB) missingParent(ctx context.Context, vote *model.Vote) error {
	exists, err := userExists(ctx, v.conn, vote.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return accountGone(vote.UserID)
	}
	return apperror.NotFound("quote", vote.QuoteID)
}

func (v *VoteDB) Delete(ctx context.Context, userID, quoteID int64) error {
	res, err := v.conn.ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = ? AND quote_id = ?`, userID, quoteID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting vote (user=%d, quote=%d): %w", userID, quoteID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict(apperror.CodeNotVoted, "you have not voted for this quote")
	}
	return nil
}

func (v *VoteDB) Count(ctx context.Context, quoteID int64) (int, error) {
	var n int
	err := v.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE quote_id = ?`, quoteID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting votes for quote %d: %w", quoteID, err)
	}
	return n, nil
}

func (v *VoteDB) VotedFor(ctx context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error) {
	voted := make(map[int64]bool, len(quoteIDs))
	if len(quoteIDs) == 0 {
		return voted, nil
	}

	args := make([]any, 0, len(quoteIDs)+1)
	args = append(args, userID)
	for _, id := range quoteIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(quoteIDs)), ",")

	rows, err := v.conn.QueryContext(ctx,
		`SELECT quote_id FROM votes WHERE user_id = ? AND quote_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing votes of user %d: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		voted[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating votes: %w", err)
	}
	return voted, nil
}
