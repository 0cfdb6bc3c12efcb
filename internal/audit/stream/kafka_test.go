package stream

import (
	"context"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"warden/internal/audit"
	"warden/internal/audit/store/memory"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

type failingSink struct{}

func (failingSink) Append(context.Context, ...audit.Entry) error { return errors.New("disk full") }
func (failingSink) Query(context.Context, audit.Filter) iter.Seq2[audit.Entry, error] {
	return func(func(audit.Entry, error) bool) {}
}

func entries() []audit.Entry {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []audit.Entry{
		{SequenceID: 1, Timestamp: ts, ActorID: "u1", GuildID: "g1", Action: audit.ActionSpamWarned, Outcome: audit.OutcomeEscalated},
		{SequenceID: 2, Timestamp: ts, ActorID: "u2", Action: audit.ActionRateLimitExceeded, Outcome: audit.OutcomeDenied},
	}
}

func TestMirror_AppendPublishesAfterPrimary(t *testing.T) {
	primary := memory.NewInMemoryStore()
	producer := &fakeProducer{}
	m, err := NewMirror(primary, producer, "warden.audit")
	require.NoError(t, err)

	require.NoError(t, m.Append(context.Background(), entries()...))

	assert.Equal(t, 2, primary.Len())
	require.Len(t, producer.records, 2)
	assert.Equal(t, "g1", string(producer.records[0].Key))
	assert.Equal(t, "u2", string(producer.records[1].Key), "actor keys entries without a guild")

	decoded, err := Decode(producer.records[0])
	require.NoError(t, err)
	assert.Equal(t, entries()[0], decoded)
}

func TestMirror_PublishFailureDoesNotFailAppend(t *testing.T) {
	primary := memory.NewInMemoryStore()
	m, err := NewMirror(primary, &fakeProducer{err: errors.New("broker down")}, "warden.audit")
	require.NoError(t, err)

	assert.NoError(t, m.Append(context.Background(), entries()...))
	assert.Equal(t, 2, primary.Len())
}

func TestMirror_PrimaryFailureSkipsPublish(t *testing.T) {
	producer := &fakeProducer{}
	m, err := NewMirror(failingSink{}, producer, "warden.audit")
	require.NoError(t, err)

	assert.Error(t, m.Append(context.Background(), entries()...))
	assert.Empty(t, producer.records)
}

func TestMirror_QueryDelegates(t *testing.T) {
	primary := memory.NewInMemoryStore()
	m, err := NewMirror(primary, &fakeProducer{}, "warden.audit")
	require.NoError(t, err)
	require.NoError(t, m.Append(context.Background(), entries()...))

	var got []uint64
	for e, err := range m.Query(context.Background(), audit.Filter{Outcome: audit.OutcomeDenied}) {
		require.NoError(t, err)
		got = append(got, e.SequenceID)
	}
	assert.True(t, slices.Equal([]uint64{2}, got))
}

func TestNewMirror_RequiresCollaborators(t *testing.T) {
	_, err := NewMirror(nil, &fakeProducer{}, "t")
	assert.Error(t, err)
	_, err = NewMirror(memory.NewInMemoryStore(), nil, "t")
	assert.Error(t, err)
	_, err = NewMirror(memory.NewInMemoryStore(), &fakeProducer{}, "")
	assert.Error(t, err)
}
