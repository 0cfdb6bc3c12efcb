package audit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// run is the single writer. It drains pending entries in batches and retries
// a failed batch until it succeeds or the logger stops.
func (l *Logger) run() {
	defer close(l.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		batch := l.nextBatch()
		if len(batch) == 0 {
			select {
			case <-l.wake:
				continue
			case <-l.stop:
				return
			}
		}
		if err := l.appendBatch(ctx, batch); err != nil {
			return
		}
		l.commit(len(batch), batch[len(batch)-1].SequenceID)
	}
}

func (l *Logger) nextBatch() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := min(len(l.pending), l.batchSize)
	if n == 0 {
		return nil
	}
	batch := make([]Entry, n)
	copy(batch, l.pending[:n])
	return batch
}

func (l *Logger) appendBatch(ctx context.Context, batch []Entry) error {
	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		err := l.sink.Append(ctx, batch...)
		if err != nil {
			if l.metrics != nil {
				l.metrics.IncAppendFailures()
			}
			l.logger.Warn("audit append failed",
				"first_sequence_id", batch[0].SequenceID,
				"batch", len(batch),
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(l.newBackOff(), ctx)); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.ObserveBatch(time.Since(start))
	}
	return nil
}

// commit drops the persisted prefix and wakes any Flush waiters.
func (l *Logger) commit(n int, last uint64) {
	l.mu.Lock()
	l.pending = l.pending[n:]
	if len(l.pending) == 0 {
		l.pending = nil
	}
	l.durable = last
	close(l.progress)
	l.progress = make(chan struct{})
	backlog := len(l.pending)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.SetPending(backlog)
	}
}
