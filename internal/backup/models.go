package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// LatestRef selects the newest snapshot of a guild.
const LatestRef = "latest"

// GuildConfig is a guild's configuration as held by the configuration store.
// Payload is opaque to this package.
type GuildConfig struct {
	Version int64
	Payload []byte
}

// Snapshot is an immutable copy of a guild configuration.
type Snapshot struct {
	ID            string    `json:"id"`
	GuildID       string    `json:"guild_id"`
	TakenAt       time.Time `json:"taken_at"`
	ConfigVersion int64     `json:"config_version"`
	Payload       []byte    `json:"-"`
	Checksum      string    `json:"checksum"`
}

// Checksum returns the hex SHA-256 of payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the payload still matches the recorded checksum.
func (s *Snapshot) Verify() bool {
	return Checksum(s.Payload) == s.Checksum
}

// Clone returns a deep copy so stores never share payload memory with callers.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Payload = append([]byte(nil), s.Payload...)
	return &c
}
