package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks BucketStore

import (
	"context"
	"time"

	"warden/internal/ratelimit/models"
)

// BucketStore holds token buckets keyed by the rendered RateKey.
type BucketStore interface {
	Take(ctx context.Context, key string, limit models.Limit, cost int, now time.Time) (models.Result, error)
	Reset(ctx context.Context, key string) error
}
