package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"warden/internal/audit"
)

func TestBuildQuery(t *testing.T) {
	t.Run("no filter selects everything in order", func(t *testing.T) {
		q, args := buildQuery(audit.Filter{})
		assert.NotContains(t, q, "WHERE")
		assert.Contains(t, q, "ORDER BY sequence_id ASC")
		assert.Empty(t, args)
	})

	t.Run("placeholders follow argument order", func(t *testing.T) {
		since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		q, args := buildQuery(audit.Filter{
			GuildID:       "g1",
			Outcome:       audit.OutcomeDenied,
			Since:         since,
			AfterSequence: 10,
			Limit:         50,
		})
		assert.Contains(t, q, "sequence_id > $1")
		assert.Contains(t, q, "guild_id = $2")
		assert.Contains(t, q, "outcome = $3")
		assert.Contains(t, q, "occurred_at >= $4")
		assert.Contains(t, q, "LIMIT $5")
		assert.Equal(t, []any{int64(10), "g1", "denied", since, 50}, args)
	})
}
