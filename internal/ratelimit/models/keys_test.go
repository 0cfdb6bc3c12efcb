package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

func TestRateKey_String(t *testing.T) {
	k, err := NewRateKey("user:admin", CategoryCommand, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "user_admin:command:guild-1", k.String())

	other, err := NewRateKey("user", CategoryCommand, "admin:guild-1")
	require.NoError(t, err)
	assert.NotEqual(t, k.String(), other.String(), "delimiters in segments must not collide")
}

func TestNewRateKey_Invariants(t *testing.T) {
	_, err := NewRateKey("", CategoryWebhook, "g")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewRateKey("a", "", "g")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestLimit(t *testing.T) {
	l := Limit{Capacity: 3, RefillPerSecond: 1.5}
	assert.NoError(t, l.Validate())
	assert.Equal(t, 2*time.Second, l.WaitFor(3))
	assert.Zero(t, l.WaitFor(-1))

	assert.Error(t, Limit{Capacity: 0, RefillPerSecond: 1}.Validate())
	assert.Error(t, Limit{Capacity: 1, RefillPerSecond: 0}.Validate())
}
