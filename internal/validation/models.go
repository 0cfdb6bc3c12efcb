package validation

import (
	"fmt"
	"time"
)

// Kind selects the normalization and checks applied to a field.
type Kind string

const (
	KindName     Kind = "name"
	KindChannel  Kind = "channel"
	KindRole     Kind = "role"
	KindUser     Kind = "user"
	KindInt      Kind = "int"
	KindDuration Kind = "duration"
	KindEnum     Kind = "enum"
)

// Constraints bound a field. Only the members relevant to the field's kind
// are consulted; a zero range means unbounded.
type Constraints struct {
	MinLength   int // graphemes, name
	MaxLength   int // graphemes, name
	Min         int64
	Max         int64
	MinDuration time.Duration
	MaxDuration time.Duration
	Choices     []string
}

// Field is one raw administrative input.
type Field struct {
	Name        string
	Kind        Kind
	Raw         string
	Constraints Constraints
}

// Value is a normalized field. Text holds the canonical string form for every
// kind: the cleaned name, the bare snowflake id, the decimal integer, the
// duration string, or the matching choice.
type Value struct {
	Field    string
	Kind     Kind
	Text     string
	Int      int64
	Duration time.Duration
}

// Request is a multi-field mutation by an actor. Capability, when set, must be
// held by the actor in the guild.
type Request struct {
	ActorID    string
	GuildID    string
	Capability string
	Fields     []Field
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
