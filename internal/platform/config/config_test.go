package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSet(t *testing.T) {
	t.Run("every documented knob is recognized", func(t *testing.T) {
		for _, name := range []string{
			"rateLimit.capacity", "rateLimit.refillPerSecond",
			"antiSpam.warnThreshold", "antiSpam.restrictThreshold", "antiSpam.windowSeconds",
			"joinGate.burstThreshold", "joinGate.windowSeconds",
			"joinGate.lockdownCooldownSeconds", "joinGate.minAccountAgeSeconds",
			"signature.skewSeconds", "backup.intervalHours",
		} {
			assert.Contains(t, Knobs(), name)
		}
	})

	t.Run("parses typed values", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Set("rateLimit.capacity", "3"))
		require.NoError(t, cfg.Set("rateLimit.refillPerSecond", "0.25"))
		require.NoError(t, cfg.Set("kafka.brokers", "a:9092, b:9092"))
		assert.Equal(t, 3, cfg.RateLimit.Capacity)
		assert.InDelta(t, 0.25, cfg.RateLimit.RefillPerSecond, 1e-9)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("rejects unknown and malformed knobs", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, cfg.Set("rateLimit.nope", "1"))
		assert.Error(t, cfg.Set("rateLimit.capacity", "three"))
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WARDEN_JOINGATE_BURSTTHRESHOLD":  "4",
		"WARDEN_SIGNATURE_SECRET_TWITCH":  "s3cret",
		"WARDEN_BACKUP_INTERVALHOURS":     "2",
		"WARDEN_KAFKA_BROKERS":            "k1:9092, k2:9092,k1:9092",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, 4, cfg.JoinGate.BurstThreshold)
	assert.Equal(t, "s3cret", cfg.Signature.Secrets["twitch"])
	assert.Equal(t, 2*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	body := []byte(`
rateLimit:
  capacity: 3
  refillPerSecond: 1
antiSpam:
  warnThreshold: 4
  restrictThreshold: 8
joinGate:
  strictness: reject
backup:
  guilds: [" g1", "g2", "g1", ""]
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, 3, cfg.RateLimit.Capacity)
	assert.InDelta(t, 8, cfg.AntiSpam.RestrictThreshold, 1e-9)
	assert.Equal(t, "reject", cfg.JoinGate.Strictness)
	assert.Equal(t, []string{"g1", "g2"}, cfg.Backup.Guilds)
	// untouched keys keep defaults
	assert.Equal(t, 30, cfg.AntiSpam.WindowSeconds)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.AntiSpam.RestrictThreshold = cfg.AntiSpam.WarnThreshold - 1
	cfg.JoinGate.Strictness = "maybe"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "antiSpam thresholds")
	assert.Contains(t, err.Error(), "joinGate.strictness")
}

func TestRateLimitCategories(t *testing.T) {
	t.Run("top-level knobs govern every category by default", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
			if k == "WARDEN_RATELIMIT_CAPACITY" {
				return "3", true
			}
			return "", false
		}))
		for _, cat := range RateLimitCategories {
			assert.Equal(t, 3, cfg.RateLimit.For(cat).Capacity, cat)
		}
	})

	t.Run("per-category env override inherits the unset field", func(t *testing.T) {
		cfg := Default()
		env := map[string]string{
			"WARDEN_RATELIMIT_CATEGORIES_WEBHOOK_CAPACITY":        "2",
			"WARDEN_RATELIMIT_CATEGORIES_ADMIN_REFILLPERSECOND": "4",
		}
		require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}))
		assert.Equal(t, Bucket{Capacity: 2, RefillPerSecond: 1}, cfg.RateLimit.For("webhook"))
		assert.Equal(t, Bucket{Capacity: 5, RefillPerSecond: 4}, cfg.RateLimit.For("admin"))
		assert.Equal(t, Bucket{Capacity: 5, RefillPerSecond: 1}, cfg.RateLimit.For("message"))
		require.NoError(t, cfg.Validate())
	})

	t.Run("negative override is rejected", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Set("rateLimit.categories.command.capacity", "-1"))
		assert.ErrorContains(t, cfg.Validate(), "rateLimit.categories.command")
	})

	t.Run("example file loads and validates", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.LoadFile(filepath.Join("..", "..", "..", "config", "warden.example.yaml")))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, Bucket{Capacity: 3, RefillPerSecond: 1}, cfg.RateLimit.For("webhook"))
		assert.Equal(t, Bucket{Capacity: 20, RefillPerSecond: 2}, cfg.RateLimit.For("admin"))
	})
}

func TestExampleFileGrants(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.LoadFile(filepath.Join("..", "..", "..", "config", "warden.example.yaml")))
	assert.Equal(t, []string{"*"}, cfg.Permissions.Grants["123456789012345678"])
	assert.Equal(t, []string{"manage_config", "lockdown"}, cfg.Permissions.Grants["223456789012345678/323456789012345678"])
}
