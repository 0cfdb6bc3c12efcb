package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("unconfigured returns nil client", func(t *testing.T) {
		c, err := New(context.Background(), config.Redis{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("malformed url is rejected before dialing", func(t *testing.T) {
		_, err := New(context.Background(), config.Redis{URL: "http://not-redis"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis URL")
	})
}
