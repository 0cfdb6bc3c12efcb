package admin

import (
	"time"

	"warden/internal/audit"
	"warden/internal/backup"
	"warden/internal/joingate"
)

// AuditEntriesResponse is one page of audit entries. NextAfter is the
// sequence id to pass as "after" for the next page; zero when exhausted.
type AuditEntriesResponse struct {
	Entries   []audit.Entry `json:"entries"`
	NextAfter uint64        `json:"next_after,omitempty"`
}

// SnapshotResponse describes a snapshot without its payload.
type SnapshotResponse struct {
	ID            string    `json:"id"`
	GuildID       string    `json:"guild_id"`
	TakenAt       time.Time `json:"taken_at"`
	ConfigVersion int64     `json:"config_version"`
	Checksum      string    `json:"checksum"`
	Bytes         int       `json:"bytes"`
}

type SnapshotsListResponse struct {
	Snapshots []SnapshotResponse `json:"snapshots"`
	Total     int                `json:"total"`
}

func FromSnapshot(s *backup.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:            s.ID,
		GuildID:       s.GuildID,
		TakenAt:       s.TakenAt,
		ConfigVersion: s.ConfigVersion,
		Checksum:      s.Checksum,
		Bytes:         len(s.Payload),
	}
}

// LockdownResponse wraps a guild's lockdown status.
type LockdownResponse struct {
	joingate.Status
	Lifted bool `json:"lifted,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type RateLimitResetResponse struct {
	Key   string `json:"key"`
	Reset bool   `json:"reset"`
}
