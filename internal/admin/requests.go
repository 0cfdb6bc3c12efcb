package admin

import (
	"net/url"
	"strconv"
	"time"

	"warden/internal/audit"
	dErrors "warden/pkg/domain-errors"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// RestoreRequest selects the snapshot to restore; empty means latest.
type RestoreRequest struct {
	Ref string `json:"ref"`
}

// ForceLockdownRequest starts a manual lockdown. Zero seconds holds it until
// it is lifted.
type ForceLockdownRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (r ForceLockdownRequest) Validate() error {
	if r.DurationSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "duration_seconds must not be negative")
	}
	if r.DurationSeconds > 7*24*3600 {
		return dErrors.New(dErrors.CodeValidation, "duration_seconds must be at most one week")
	}
	return nil
}

func (r ForceLockdownRequest) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// ParseAuditFilter reads actor, guild, action, outcome, since, until (RFC 3339),
// after and limit from the query string.
func ParseAuditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		ActorID: q.Get("actor"),
		GuildID: q.Get("guild"),
		Action:  audit.Action(q.Get("action")),
		Outcome: audit.Outcome(q.Get("outcome")),
		Limit:   defaultPageSize,
	}
	if f.Outcome != "" && !f.Outcome.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "unknown outcome "+string(f.Outcome))
	}
	var err error
	if f.Since, err = parseTime(q, "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTime(q, "until"); err != nil {
		return f, err
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return f, dErrors.New(dErrors.CodeValidation, "since must be before until")
	}
	if v := q.Get("after"); v != "" {
		if f.AfterSequence, err = strconv.ParseUint(v, 10, 64); err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "after must be a sequence id")
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		f.Limit = min(n, maxPageSize)
	}
	return f, nil
}

func parseTime(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, key+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
