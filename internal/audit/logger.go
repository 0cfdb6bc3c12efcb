package audit

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"warden/pkg/requestcontext"
)

// Logger assigns sequence ids and hands entries to a single background writer
// that appends them to the sink in order. Record never blocks on sink I/O.
type Logger struct {
	sink    Sink
	logger  *slog.Logger
	metrics *Metrics

	batchSize  int
	softLimit  int
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	seq      uint64  // last assigned
	durable  uint64  // last appended to the sink
	pending  []Entry // assigned, not yet appended, ascending
	progress chan struct{}
	closed   bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type Option func(*Logger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithBatchSize caps the number of entries per sink append.
func WithBatchSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithBufferSize sets the pending-entry count above which the logger warns
// that the sink is falling behind. Entries are never dropped.
func WithBufferSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.softLimit = n
		}
	}
}

// WithStartSequence continues numbering after n, typically the highest id
// already held by a persistent sink.
func WithStartSequence(n uint64) Option {
	return func(l *Logger) {
		l.seq = n
		l.durable = n
	}
}

// WithBackOff overrides the retry policy for failed appends.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(l *Logger) {
		if newBackOff != nil {
			l.newBackOff = newBackOff
		}
	}
}

// New creates a logger and starts its writer goroutine. Call Close to drain.
func New(sink Sink, opts ...Option) (*Logger, error) {
	if sink == nil {
		return nil, errors.New("audit sink is required")
	}
	l := &Logger{
		sink:      sink,
		batchSize: 128,
		softLimit: 4096,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	go l.run()
	return l, nil
}

// Record assigns the next sequence id and queues the entry for persistence.
// Ids are strictly increasing and gap-free; entries reach the sink in id order.
func (l *Logger) Record(ctx context.Context, r Record) Entry {
	if r.Timestamp.IsZero() {
		r.Timestamp = requestcontext.Now(ctx)
	}
	if r.RequestID == "" {
		r.RequestID = requestcontext.RequestID(ctx)
	}
	if !r.Outcome.IsValid() {
		r.Outcome = OutcomeDenied
	}

	l.mu.Lock()
	l.seq++
	e := Entry{
		SequenceID: l.seq,
		Timestamp:  r.Timestamp.UTC(),
		ActorID:    r.ActorID,
		GuildID:    r.GuildID,
		Action:     r.Action,
		Outcome:    r.Outcome,
		Detail:     r.Detail,
		RequestID:  r.RequestID,
	}
	closed := l.closed
	if !closed {
		l.pending = append(l.pending, e)
	}
	backlog := len(l.pending)
	l.mu.Unlock()

	if closed {
		l.logger.ErrorContext(ctx, "audit entry recorded after close",
			"sequence_id", e.SequenceID,
			"action", e.Action,
		)
		return e
	}

	if l.metrics != nil {
		l.metrics.IncRecorded(e.Outcome)
		l.metrics.SetPending(backlog)
	}
	if backlog == l.softLimit+1 {
		l.logger.WarnContext(ctx, "audit sink falling behind", "pending", backlog)
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return e
}

// Query yields entries from the sink. Entries become visible once durable;
// call Flush first to include everything recorded so far.
func (l *Logger) Query(ctx context.Context, filter Filter) iter.Seq2[Entry, error] {
	return l.sink.Query(ctx, filter)
}

// Flush waits until every entry recorded before the call is durable.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	target := l.seq
	l.mu.Unlock()
	for {
		l.mu.Lock()
		reached := l.durable >= target
		ch := l.progress
		l.mu.Unlock()
		if reached {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LastSequence returns the most recently assigned id.
func (l *Logger) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close stops accepting entries and drains the queue. If ctx expires first
// the remaining entries are reported as lost.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.Flush(ctx)
	close(l.stop)
	<-l.done

	if err != nil {
		l.mu.Lock()
		lost := len(l.pending)
		l.mu.Unlock()
		l.logger.Error("audit drain incomplete", "unpersisted", lost, "error", err)
		return err
	}
	return nil
}
