package backup

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks ConfigStore,SnapshotStore

import "context"

// ConfigStore reads and replaces guild configuration. Write must apply the
// whole configuration or none of it.
type ConfigStore interface {
	Read(ctx context.Context, guildID string) (GuildConfig, error)
	Write(ctx context.Context, guildID string, cfg GuildConfig) error
}

// SnapshotStore persists snapshots. Save is idempotent per snapshot id. Get
// and Latest return sentinel.ErrNotFound when nothing matches. List is newest
// first. Prune deletes all but the newest keep snapshots of a guild.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, guildID, id string) (*Snapshot, error)
	Latest(ctx context.Context, guildID string) (*Snapshot, error)
	List(ctx context.Context, guildID string) ([]*Snapshot, error)
	Prune(ctx context.Context, guildID string, keep int) (int, error)
}

// PayloadValidator checks a snapshot payload before it is written back.
type PayloadValidator func(payload []byte) error
