//go:build integration

package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"warden/internal/audit"
	"warden/internal/audit/store/memory"
	"warden/internal/audit/stream"
	"warden/pkg/testutil/containers"
)

func TestMirrorPublishesToBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	const topic = "warden.audit.it"
	producer := rp.NewClient(t)
	require.NoError(t, stream.EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, stream.EnsureTopic(ctx, producer, topic, 1, 1), "existing topic is not an error")

	logger, err := audit.New(mustMirror(t, producer, topic))
	require.NoError(t, err)
	logger.Record(ctx, audit.Record{ActorID: "u1", GuildID: "g1", Action: audit.ActionJoinHeld, Outcome: audit.OutcomeEscalated})
	logger.Record(ctx, audit.Record{ActorID: "u2", GuildID: "g1", Action: audit.ActionJoinAdmitted, Outcome: audit.OutcomeAllowed})
	require.NoError(t, logger.Close(ctx))

	consumer := rp.NewClient(t, kgo.ConsumeTopics(topic), kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	var got []audit.Entry
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			e, err := stream.Decode(r)
			require.NoError(t, err)
			got = append(got, e)
		})
	}
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].SequenceID)
	assert.Equal(t, audit.ActionJoinHeld, got[0].Action)
	assert.Equal(t, uint64(2), got[1].SequenceID)
}

func mustMirror(t *testing.T, producer *kgo.Client, topic string) *stream.Mirror {
	t.Helper()
	m, err := stream.NewMirror(memory.NewInMemoryStore(), producer, topic)
	require.NoError(t, err)
	return m
}
