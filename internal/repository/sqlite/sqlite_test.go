package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sakif/quoteboard/internal/model"
)

// TestNew_ForeignKeysOnEveryConnection closes each connection as soon as it
// is returned to the pool, so every statement below runs on a fresh one.
func TestNew_ForeignKeysOnEveryConnection(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.conn.SetMaxIdleConns(0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		var on int
		if err := db.conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("PRAGMA foreign_keys: %v", err)
		}
		if on != 1 {
			t.Fatalf("foreign_keys = %d on connection %d, want 1", on, i)
		}
	}

	u := createTestUser(t, db, "voter")
	q := createTestQuote(t, db, 0, "a", "b")
	if err := db.Votes().Create(ctx, &model.Vote{UserID: u.ID, QuoteID: q.ID}); err != nil {
		t.Fatalf("Create vote: %v", err)
	}
	if err := db.Quotes().Delete(ctx, q.ID); err != nil {
		t.Fatalf("Delete quote: %v", err)
	}
	n, err := db.Votes().Count(ctx, q.ID)
	if err != nil {
		t.Fatalf("Count(): %v", err)
	}
	if n != 0 {
		t.Errorf("votes left after quote delete = %d, want 0", n)
	}
}
