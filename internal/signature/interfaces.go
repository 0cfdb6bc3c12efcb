package signature

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks SecretProvider,ReplayCache

import (
	"context"
	"time"
)

// SecretProvider supplies the shared webhook secret for a source platform.
// It returns sentinel.ErrNotFound when the source has no secret.
type SecretProvider interface {
	Secret(ctx context.Context, source string) ([]byte, error)
}

// ReplayCache remembers accepted signatures. MarkSeen records key and reports
// whether it was absent; check and insert happen atomically so two deliveries
// of the same payload cannot both pass.
type ReplayCache interface {
	MarkSeen(ctx context.Context, key string, now time.Time, ttl time.Duration) (firstSeen bool, err error)
}
