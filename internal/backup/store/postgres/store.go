package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/lib/pq"

	"warden/internal/backup"
	"warden/pkg/platform/sentinel"
	"warden/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS backup_snapshots (
	id             UUID PRIMARY KEY,
	guild_id       TEXT NOT NULL,
	taken_at       TIMESTAMPTZ NOT NULL,
	config_version BIGINT NOT NULL,
	payload        BYTEA NOT NULL,
	checksum       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS backup_snapshots_guild_idx ON backup_snapshots (guild_id, taken_at DESC);

CREATE TABLE IF NOT EXISTS guild_configs (
	guild_id   TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var (
	// zstd encoder/decoder are safe for concurrent use
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EnsureSchema creates the snapshot and guild config tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create backup schema: %w", err)
	}
	return nil
}

// SnapshotStore persists snapshots in PostgreSQL with zstd-compressed
// payloads. Rows are inserted and deleted, never updated.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Save(ctx context.Context, snap *backup.Snapshot) error {
	compressed := zstdEncoder.EncodeAll(snap.Payload, nil)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_snapshots (id, guild_id, taken_at, config_version, payload, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, snap.ID, snap.GuildID, snap.TakenAt, snap.ConfigVersion, compressed, snap.Checksum)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const selectSnapshot = `SELECT id, guild_id, taken_at, config_version, payload, checksum FROM backup_snapshots`

func (s *SnapshotStore) Get(ctx context.Context, guildID, id string) (*backup.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshot+` WHERE guild_id = $1 AND id = $2`, guildID, id)
	return scanSnapshot(row)
}

func (s *SnapshotStore) Latest(ctx context.Context, guildID string) (*backup.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshot+` WHERE guild_id = $1 ORDER BY taken_at DESC, id DESC LIMIT 1`, guildID)
	return scanSnapshot(row)
}

func (s *SnapshotStore) List(ctx context.Context, guildID string) ([]*backup.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, selectSnapshot+` WHERE guild_id = $1 ORDER BY taken_at DESC, id DESC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*backup.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// Prune deletes every snapshot of guildID older than the newest keep. The
// selected rows are locked so a concurrent Save cannot interleave.
func (s *SnapshotStore) Prune(ctx context.Context, guildID string, keep int) (int, error) {
	var deleted int
	err := tx.Run(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id FROM backup_snapshots
			WHERE guild_id = $1
			ORDER BY taken_at DESC, id DESC
			OFFSET $2
			FOR UPDATE
		`, guildID, keep)
		if err != nil {
			return fmt.Errorf("select prunable snapshots: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan snapshot id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate prunable snapshots: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		res, err := q.ExecContext(ctx, `DELETE FROM backup_snapshots WHERE id = ANY($1::uuid[])`, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("delete snapshots: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("count deleted snapshots: %w", err)
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*backup.Snapshot, error) {
	var (
		snap       backup.Snapshot
		compressed []byte
	)
	err := row.Scan(&snap.ID, &snap.GuildID, &snap.TakenAt, &snap.ConfigVersion, &compressed, &snap.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Payload, err = zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", snap.ID, err)
	}
	snap.TakenAt = snap.TakenAt.UTC()
	return &snap, nil
}

// ConfigStore keeps each guild's configuration in one row. Write replaces the
// row in a single statement, so it applies entirely or not at all.
type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) Read(ctx context.Context, guildID string) (backup.GuildConfig, error) {
	var cfg backup.GuildConfig
	err := s.db.QueryRowContext(ctx, `SELECT version, payload FROM guild_configs WHERE guild_id = $1`, guildID).
		Scan(&cfg.Version, &cfg.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return backup.GuildConfig{}, sentinel.ErrNotFound
	}
	if err != nil {
		return backup.GuildConfig{}, fmt.Errorf("read guild config: %w", err)
	}
	return cfg, nil
}

// Write joins the transaction carried by ctx, if any.
func (s *ConfigStore) Write(ctx context.Context, guildID string, cfg backup.GuildConfig) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO guild_configs (guild_id, version, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (guild_id) DO UPDATE
		SET version = EXCLUDED.version, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, guildID, cfg.Version, cfg.Payload)
	if err != nil {
		return fmt.Errorf("write guild config: %w", err)
	}
	return nil
}

// Guilds lists every guild with stored configuration.
func (s *ConfigStore) Guilds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM guild_configs ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
