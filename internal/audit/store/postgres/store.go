package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/lib/pq"

	"warden/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	sequence_id BIGINT PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor_id    TEXT NOT NULL,
	guild_id    TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_entries_guild_idx ON audit_entries (guild_id, sequence_id);
CREATE INDEX IF NOT EXISTS audit_entries_actor_idx ON audit_entries (actor_id, sequence_id);
`

// Store persists audit entries in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// LastSequence returns the highest persisted sequence id, or 0 when empty.
func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence_id) FROM audit_entries`).Scan(&last); err != nil {
		return 0, fmt.Errorf("read last audit sequence: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// Append inserts a batch in one statement. Duplicate sequence ids are ignored
// so a retried batch is harmless.
func (s *Store) Append(ctx context.Context, entries ...audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var (
		seqs     = make([]int64, len(entries))
		times    = make([]string, len(entries))
		actors   = make([]string, len(entries))
		guilds   = make([]string, len(entries))
		actions  = make([]string, len(entries))
		outcomes = make([]string, len(entries))
		details  = make([]string, len(entries))
		requests = make([]string, len(entries))
	)
	for i, e := range entries {
		seqs[i] = int64(e.SequenceID)
		times[i] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		actors[i] = e.ActorID
		guilds[i] = e.GuildID
		actions[i] = string(e.Action)
		outcomes[i] = string(e.Outcome)
		details[i] = e.Detail
		requests[i] = e.RequestID
	}

	query := `
		INSERT INTO audit_entries (
			sequence_id, occurred_at, actor_id, guild_id,
			action, outcome, detail, request_id
		)
		SELECT * FROM unnest(
			$1::bigint[], $2::timestamptz[], $3::text[], $4::text[],
			$5::text[], $6::text[], $7::text[], $8::text[]
		)
		ON CONFLICT (sequence_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		pq.Array(seqs),
		pq.Array(times),
		pq.Array(actors),
		pq.Array(guilds),
		pq.Array(actions),
		pq.Array(outcomes),
		pq.Array(details),
		pq.Array(requests),
	)
	if err != nil {
		return fmt.Errorf("insert audit entries: %w", err)
	}
	return nil
}

// Query streams matching rows ordered by sequence id. The result set is read
// lazily; stopping iteration closes the rows.
func (s *Store) Query(ctx context.Context, filter audit.Filter) iter.Seq2[audit.Entry, error] {
	return func(yield func(audit.Entry, error) bool) {
		query, args := buildQuery(filter)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(audit.Entry{}, fmt.Errorf("query audit entries: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e       audit.Entry
				seq     int64
				action  string
				outcome string
			)
			if err := rows.Scan(&seq, &e.Timestamp, &e.ActorID, &e.GuildID,
				&action, &outcome, &e.Detail, &e.RequestID); err != nil {
				yield(audit.Entry{}, fmt.Errorf("scan audit entry: %w", err))
				return
			}
			e.SequenceID = uint64(seq)
			e.Timestamp = e.Timestamp.UTC()
			e.Action = audit.Action(action)
			e.Outcome = audit.Outcome(outcome)
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(audit.Entry{}, fmt.Errorf("iterate audit entries: %w", err))
		}
	}
}

func buildQuery(f audit.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.AfterSequence > 0 {
		add("sequence_id > $%d", int64(f.AfterSequence))
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.GuildID != "" {
		add("guild_id = $%d", f.GuildID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("occurred_at < $%d", f.Until)
	}

	var b strings.Builder
	b.WriteString(`SELECT sequence_id, occurred_at, actor_id, guild_id, action, outcome, detail, request_id FROM audit_entries`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY sequence_id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
