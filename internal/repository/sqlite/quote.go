package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

var _ repository.QuoteRepository = (*QuoteDB)(nil)

// QuoteDB stores quotes in the quotes table.
type QuoteDB struct {
	conn *sql.DB
}

const quoteColumns = `id, author, body, approved, upvotes, submitter_id, created_at, updated_at`

// Create inserts a new quote. New quotes are always unapproved with zero
// upvotes, whatever the caller set.
func (q *QuoteDB) Create(ctx context.Context, quote *model.Quote) error {
	now := time.Now().UTC()
	quote.CreatedAt = now
	quote.UpdatedAt = now
	quote.Approved = false
	quote.Upvotes = 0

	res, err := q.conn.ExecContext(ctx,
		`INSERT INTO quotes (author, body, approved, upvotes, submitter_id, created_at, updated_at)
		 VALUES (?, ?, 0, 0, ?, ?, ?)`,
		quote.Author,
		quote.Text,
		nullableID(quote.SubmitterID),
		quote.CreatedAt,
		quote.UpdatedAt,
	)
	if err != nil {
		// submitter_id is the only reference a quote holds.
		if isForeignKeyViolation(err) {
			return accountGone(quote.SubmitterID)
		}
		return fmt.Errorf("sqlite: creating quote: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading quote id: %w", err)
	}
	quote.ID = id

	return nil
}

func (q *QuoteDB) GetByID(ctx context.Context, id int64) (*model.Quote, error) {
	row := q.conn.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	quote, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("quote", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting quote %d: %w", id, err)
	}
	return quote, nil
}

// orderBy maps a sort to a fixed ORDER BY clause. The clause is never built
// from user input.
func orderBy(sort model.QuoteSort) string {
	switch sort {
	case model.SortOldest:
		return `created_at ASC, id ASC`
	case model.SortTop:
		return `upvotes DESC, created_at DESC, id DESC`
	default:
		return `created_at DESC, id DESC`
	}
}

func (q *QuoteDB) List(ctx context.Context, opts repository.QuoteListOptions) ([]model.Quote, error) {
	limit, offset := clampList(opts.ListOptions)

	rows, err := q.conn.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes
		 WHERE approved = ?
		 ORDER BY `+orderBy(opts.Sort)+`
		 LIMIT ? OFFSET ?`,
		opts.Approved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]model.Quote, 0, limit)
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning quote row: %w", err)
		}
		quotes = append(quotes, *quote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating quotes: %w", err)
	}

	return quotes, nil
}

func (q *QuoteDB) Count(ctx context.Context, approved bool) (int, error) {
	var n int
	err := q.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quotes WHERE approved = ?`, approved).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting quotes: %w", err)
	}
	return n, nil
}

func (q *QuoteDB) Update(ctx context.Context, quote *model.Quote) error {
	quote.UpdatedAt = time.Now().UTC()

	res, err := q.conn.ExecContext(ctx,
		`UPDATE quotes SET author = ?, body = ?, updated_at = ? WHERE id = ?`,
		quote.Author,
		quote.Text,
		quote.UpdatedAt,
		quote.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating quote %d: %w", quote.ID, err)
	}
	return expectOneRow(res, "quote", quote.ID)
}

func (q *QuoteDB) SetApproved(ctx context.Context, id int64, approved bool) error {
	res, err := q.conn.ExecContext(ctx,
		`UPDATE quotes SET approved = ?, updated_at = ? WHERE id = ?`,
		approved, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: setting approval of quote %d: %w", id, err)
	}
	return expectOneRow(res, "quote", id)
}

func (q *QuoteDB) Delete(ctx context.Context, id int64) error {
	res, err := q.conn.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting quote %d: %w", id, err)
	}
	return expectOneRow(res, "quote", id)
}

// RecountVotes recomputes the cached count from the votes table in a single
// statement and reads the result back.
func (q *QuoteDB) RecountVotes(ctx context.Context, id int64) (int, error) {
	var n int
	err := q.conn.QueryRowContext(ctx,
		`UPDATE quotes
		 SET upvotes = (SELECT COUNT(*) FROM votes WHERE votes.quote_id = quotes.id)
		 WHERE id = ?
		 RETURNING upvotes`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.NotFound("quote", id)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: recounting votes for quote %d: %w", id, err)
	}
	return n, nil
}

func (q *QuoteDB) RecountAll(ctx context.Context) (int64, error) {
	res, err := q.conn.ExecContext(ctx,
		`UPDATE quotes
		 SET upvotes = (SELECT COUNT(*) FROM votes WHERE votes.quote_id = quotes.id)
		 WHERE upvotes <> (SELECT COUNT(*) FROM votes WHERE votes.quote_id = quotes.id)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: recounting all votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func scanQuote(row rowScanner) (*model.Quote, error) {
	var (
		quote     model.Quote
		submitter sql.NullInt64
	)
	if err := row.Scan(
		&quote.ID,
		&quote.Author,
		&quote.Text,
		&quote.Approved,
		&quote.Upvotes,
		&submitter,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	); err != nil {
		return nil, err
	}
	quote.SubmitterID = submitter.Int64
	return &quote, nil
}
