// Package modlog records privileged actions (approvals, edits, deletions,
// permission changes) in an append-only audit trail.
//
// Recording is best-effort: the action being audited has already happened by
// the time Record runs, so a failing sink must not undo or fail it. Failures
// are instead logged at ERROR and counted so an operator can see them.
package modlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/repository"
)

// Sink is the durable store behind the log.
type Sink interface {
	Append(ctx context.Context, entry *model.ModLogEntry) error
	List(ctx context.Context, opts repository.ListOptions) ([]model.ModLogEntry, error)
}

// Counter is incremented once per entry the sink failed to store. A
// prometheus.Counter satisfies it.
type Counter interface {
	Inc()
}

// Log is the moderation log. It is safe for concurrent use if the sink is.
type Log struct {
	sink     Sink
	logger   *slog.Logger
	failures Counter
	now      func() time.Time
}

// New builds a Log. All three dependencies are required.
func New(sink Sink, logger *slog.Logger, failures Counter) *Log {
	return &Log{
		sink:     sink,
		logger:   logger,
		failures: failures,
		now:      time.Now,
	}
}

// Record appends one entry stamped with the server's clock.
func (l *Log) Record(ctx context.Context, actor string, action model.ModAction, target string) {
	entry := &model.ModLogEntry{
		At:     l.now().UTC(),
		Actor:  actor,
		Action: action,
		Target: target,
	}

	if err := l.sink.Append(ctx, entry); err != nil {
		l.failures.Inc()
		l.logger.Error("moderation log write failed",
			"error", err,
			"actor", actor,
			"action", action,
			"target", target,
			"at", entry.At,
		)
	}
}

// List returns entries newest first.
func (l *Log) List(ctx context.Context, opts repository.ListOptions) ([]model.ModLogEntry, error) {
	return l.sink.List(ctx, opts)
}

// QuoteTarget formats a quote reference for an entry.
func QuoteTarget(id int64) string { return fmt.Sprintf("quote #%d", id) }

// UserTarget formats a user reference for an entry.
func UserTarget(id int64, name string) string { return fmt.Sprintf("user #%d (%s)", id, name) }
