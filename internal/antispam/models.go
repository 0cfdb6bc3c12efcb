package antispam

import (
	"fmt"
	"time"
)

// Action is the decision returned for one observed event.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionWarn     Action = "warn"
	ActionRestrict Action = "restrict"
	ActionDeny     Action = "deny"
)

// State is the per-(actor, guild) escalation level.
type State int

const (
	StateClean State = iota
	StateWarned
	StateRestricted
)

func (s State) String() string {
	switch s {
	case StateWarned:
		return "warned"
	case StateRestricted:
		return "restricted"
	default:
		return "clean"
	}
}

// Category names the signal a violation record was dominated by.
type Category string

const (
	CategoryFrequency Category = "frequency"
	CategoryDuplicate Category = "duplicate"
	CategoryMention   Category = "mention"
	CategoryLink      Category = "link"
)

// MessageEvent is a message or action attributed to an actor in a guild.
// Mentions adds to any mentions found in Content.
type MessageEvent struct {
	ActorID   string
	GuildID   string
	Content   string
	Mentions  int
	Timestamp time.Time
}

// ViolationRecord is the immutable trace of one scored event.
type ViolationRecord struct {
	ActorID   string
	GuildID   string
	Category  Category
	Severity  int
	Timestamp time.Time
	Evidence  string
}

// Decision is returned to the caller, who applies it.
type Decision struct {
	Action          Action
	Reason          string
	Score           float64
	State           State
	RestrictedUntil time.Time
}

// Signals are the raw measurements taken from one event.
type Signals struct {
	Duplicates  int
	Mentions    int
	Links       int
	LinkDensity float64
}

func (s Signals) String() string {
	return fmt.Sprintf("duplicates=%d mentions=%d links=%d link_density=%.2f", s.Duplicates, s.Mentions, s.Links, s.LinkDensity)
}

type stateKey struct {
	actorID string
	guildID string
}
