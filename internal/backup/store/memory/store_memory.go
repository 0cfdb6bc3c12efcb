package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"warden/internal/backup"
	"warden/pkg/platform/sentinel"
)

// InMemorySnapshotStore keeps snapshots per guild ordered oldest first.
// Stored snapshots are copies, so callers cannot mutate them after Save.
type InMemorySnapshotStore struct {
	mu     sync.RWMutex
	guilds map[string][]*backup.Snapshot
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{guilds: make(map[string][]*backup.Snapshot)}
}

func (s *InMemorySnapshotStore) Save(_ context.Context, snap *backup.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.guilds[snap.GuildID]
	for _, existing := range list {
		if existing.ID == snap.ID {
			return nil
		}
	}
	list = append(list, snap.Clone())
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].TakenAt.Before(list[j].TakenAt)
	})
	s.guilds[snap.GuildID] = list
	return nil
}

func (s *InMemorySnapshotStore) Get(_ context.Context, guildID, id string) (*backup.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.guilds[guildID] {
		if snap.ID == id {
			return snap.Clone(), nil
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", id, sentinel.ErrNotFound)
}

func (s *InMemorySnapshotStore) Latest(_ context.Context, guildID string) (*backup.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.guilds[guildID]
	if len(list) == 0 {
		return nil, fmt.Errorf("no snapshots for guild %s: %w", guildID, sentinel.ErrNotFound)
	}
	return list[len(list)-1].Clone(), nil
}

func (s *InMemorySnapshotStore) List(_ context.Context, guildID string) ([]*backup.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.guilds[guildID]
	out := make([]*backup.Snapshot, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].Clone())
	}
	return out, nil
}

func (s *InMemorySnapshotStore) Prune(_ context.Context, guildID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.guilds[guildID]
	if keep < 0 || len(list) <= keep {
		return 0, nil
	}
	drop := len(list) - keep
	s.guilds[guildID] = append([]*backup.Snapshot(nil), list[drop:]...)
	return drop, nil
}

// InMemoryConfigStore holds guild configuration in memory. Writes replace the
// whole configuration at once.
type InMemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]backup.GuildConfig
}

func NewInMemoryConfigStore() *InMemoryConfigStore {
	return &InMemoryConfigStore{configs: make(map[string]backup.GuildConfig)}
}

func (s *InMemoryConfigStore) Read(_ context.Context, guildID string) (backup.GuildConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[guildID]
	if !ok {
		return backup.GuildConfig{}, fmt.Errorf("guild %s config: %w", guildID, sentinel.ErrNotFound)
	}
	return backup.GuildConfig{Version: cfg.Version, Payload: append([]byte(nil), cfg.Payload...)}, nil
}

func (s *InMemoryConfigStore) Write(ctx context.Context, guildID string, cfg backup.GuildConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[guildID] = backup.GuildConfig{Version: cfg.Version, Payload: append([]byte(nil), cfg.Payload...)}
	return nil
}

// Guilds lists every guild with stored configuration, sorted.
func (s *InMemoryConfigStore) Guilds(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.configs))
	for id := range s.configs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
