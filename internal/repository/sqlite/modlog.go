package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

var _ repository.ModLogRepository = (*ModLogDB)(nil)

// ModLogDB stores the moderation log. Triggers on the table reject UPDATE and
// DELETE, so rows are immutable once written.
type ModLogDB struct {
	conn *sql.DB
}

// Append writes one entry. The caller supplies the timestamp.
func (m *ModLogDB) Append(ctx context.Context, entry *model.ModLogEntry) error {
	res, err := m.conn.ExecContext(ctx,
		`INSERT INTO modlog (at, actor, action, target) VALUES (?, ?, ?, ?)`,
		entry.At.UTC(), entry.Actor, string(entry.Action), entry.Target)
	if err != nil {
		return fmt.Errorf("sqlite: appending modlog entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading modlog id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns entries newest first.
func (m *ModLogDB) List(ctx context.Context, opts repository.ListOptions) ([]model.ModLogEntry, error) {
	limit, offset := clampList(opts)

	rows, err := m.conn.QueryContext(ctx,
		`SELECT id, at, actor, action, target FROM modlog ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing modlog: %w", err)
	}
	defer rows.Close()

	entries := make([]model.ModLogEntry, 0, limit)
	for rows.Next() {
		var (
			e      model.ModLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &action, &e.Target); err != nil {
			return nil, fmt.Errorf("sqlite: scanning modlog row: %w", err)
		}
		e.Action = model.ModAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating modlog: %w", err)
	}
	return entries, nil
}
