package testutil

import (
	"context"
	"sync"
	"time"

	"warden/internal/audit"
	"warden/pkg/requestcontext"
)

// EventContext returns a context scoped to one inbound event at a fixed time,
// the state an event source establishes before calling a guard.
func EventContext(actorID, guildID string, now time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-test")
	return requestcontext.WithEventScope(ctx, actorID, guildID)
}

// RecordingAuditor is an audit.Recorder that keeps records in memory.
type RecordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *RecordingAuditor) Record(_ context.Context, rec audit.Record) audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return audit.Entry{SequenceID: uint64(len(r.records)), Action: rec.Action, Outcome: rec.Outcome}
}

// Records returns a copy of everything recorded so far.
func (r *RecordingAuditor) Records() []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Record(nil), r.records...)
}

// Actions returns the recorded actions in order.
func (r *RecordingAuditor) Actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Action)
	}
	return out
}

// Last returns the most recent record.
func (r *RecordingAuditor) Last() (audit.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return audit.Record{}, false
	}
	return r.records[len(r.records)-1], true
}

// Reset forgets everything recorded.
func (r *RecordingAuditor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
