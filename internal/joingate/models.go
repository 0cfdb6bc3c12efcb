package joingate

import "time"

// Action is the admission decision for one join.
type Action string

const (
	ActionAdmit  Action = "admit"
	ActionHold   Action = "hold"
	ActionReject Action = "reject"
)

// Strictness selects what lockdown does with low-trust joins.
type Strictness string

const (
	StrictnessHold   Strictness = "hold"
	StrictnessReject Strictness = "reject"
)

// JoinEvent is one member joining a guild. A zero AccountCreatedAt means the
// account age is unknown.
type JoinEvent struct {
	UserID           string
	GuildID          string
	AccountCreatedAt time.Time
	JoinedAt         time.Time
}

type GateDecision struct {
	Action     Action
	Reason     string
	TrustScore float64
	Lockdown   bool
}

// Status describes a guild's gate as of a point in time. Until is zero for a
// lockdown forced without expiry.
type Status struct {
	GuildID     string    `json:"guild_id"`
	Lockdown    bool      `json:"lockdown"`
	Forced      bool      `json:"forced"`
	Since       time.Time `json:"since,omitzero"`
	Until       time.Time `json:"until,omitzero"`
	RecentJoins int       `json:"recent_joins"`
}
