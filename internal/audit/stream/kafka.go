// Package stream mirrors persisted audit entries onto a Kafka topic so
// downstream moderation tooling can tail decisions without polling the store.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"warden/internal/audit"
)

// Producer is the subset of *kgo.Client used by the mirror.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Mirror is an audit.Sink that persists to a primary sink and then publishes
// each entry to Kafka. Publishing is best-effort: the primary sink is the
// source of truth and a failed publish does not fail the append.
type Mirror struct {
	primary  audit.Sink
	producer Producer
	topic    string
	logger   *slog.Logger
}

type Option func(*Mirror)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		m.logger = logger
	}
}

func NewMirror(primary audit.Sink, producer Producer, topic string, opts ...Option) (*Mirror, error) {
	if primary == nil {
		return nil, errors.New("primary sink is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	m := &Mirror{
		primary:  primary,
		producer: producer,
		topic:    topic,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Mirror) Append(ctx context.Context, entries ...audit.Entry) error {
	if err := m.primary.Append(ctx, entries...); err != nil {
		return err
	}
	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		r, err := m.record(e)
		if err != nil {
			m.logger.WarnContext(ctx, "encode audit entry for stream", "sequence_id", e.SequenceID, "error", err)
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 {
		return nil
	}
	if err := m.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		m.logger.WarnContext(ctx, "publish audit entries",
			"topic", m.topic,
			"first_sequence_id", entries[0].SequenceID,
			"count", len(records),
			"error", err,
		)
	}
	return nil
}

func (m *Mirror) Query(ctx context.Context, filter audit.Filter) iter.Seq2[audit.Entry, error] {
	return m.primary.Query(ctx, filter)
}

// Records are keyed by guild so one guild's entries stay ordered within a
// partition.
func (m *Mirror) record(e audit.Entry) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	key := e.GuildID
	if key == "" {
		key = e.ActorID
	}
	return &kgo.Record{
		Topic: m.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "sequence_id", Value: []byte(strconv.FormatUint(e.SequenceID, 10))},
			{Key: "action", Value: []byte(e.Action)},
		},
	}, nil
}

// Decode parses a mirrored record back into an entry.
func Decode(r *kgo.Record) (audit.Entry, error) {
	var e audit.Entry
	if err := json.Unmarshal(r.Value, &e); err != nil {
		return audit.Entry{}, fmt.Errorf("decode audit record: %w", err)
	}
	return e, nil
}

// EnsureTopic creates the audit topic if it does not already exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
