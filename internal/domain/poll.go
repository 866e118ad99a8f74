// Package domain holds the pure governance types shared across layers.
// No infrastructure dependencies — everything here is serializable state
// plus the small amount of behavior that belongs to the types themselves.
package domain

import "time"

// ─── Identity ───────────────────────────────────────────────────────────────

// IdentityMode selects which of a participant's two voting personas is
// acting. The two personas of one account are never linked by the engine;
// every vote, stake, and ledger account is keyed by (user, mode).
type IdentityMode string

const (
	ModeTrueSelf IdentityMode = "true_self"
	ModeShadow   IdentityMode = "shadow"

	// ModeSystem is reserved for platform-internal ledger accounts
	// (burn, rewards pool, revenue). Never a voting identity.
	ModeSystem IdentityMode = "system"
)

// IsVoting reports whether the mode may cast votes or stakes.
func (m IdentityMode) IsVoting() bool {
	return m == ModeTrueSelf || m == ModeShadow
}

// ─── Poll ───────────────────────────────────────────────────────────────────

// PollType categorizes what a poll decides.
type PollType string

const (
	PollGeneral           PollType = "general"
	PollParameterChange   PollType = "parameter_change"
	PollConstitutional    PollType = "constitutional"
	PollEmergencyRollback PollType = "emergency_rollback"
)

// Valid reports whether the type is one of the defined poll types.
func (t PollType) Valid() bool {
	switch t {
	case PollGeneral, PollParameterChange, PollConstitutional, PollEmergencyRollback:
		return true
	}
	return false
}

// RequiresSuperMajority reports whether the poll type needs a 66% yes share.
func (t PollType) RequiresSuperMajority() bool {
	return t == PollConstitutional || t == PollEmergencyRollback
}

// PollStatus is the poll lifecycle state.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollActive   PollStatus = "active"
	PollApproved PollStatus = "approved"
	PollRejected PollStatus = "rejected"
	PollExecuted PollStatus = "executed"
)

// SectionCount is the number of weighting buckets every poll carries.
const SectionCount = 7

// BaseVoteWeight is the constant pre-multiplier weight of every vote.
const BaseVoteWeight = 1000

// Poll is a governance decision in progress or concluded.
//
// Multipliers are generated once at creation and immutable thereafter.
// The tally fields are only mutated through vote cast/change operations,
// never written directly.
type Poll struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        PollType `json:"type"`
	Status      PollStatus `json:"status"`
	CreatorID   string   `json:"creator_id"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// Multipliers is the per-poll randomized section multiplier table,
	// indexed by section-1.
	Multipliers [SectionCount]float64 `json:"multipliers"`

	Quorum        int     `json:"quorum"`         // minimum total votes for a binding result
	ThresholdPct  float64 `json:"threshold_pct"`  // yes share required to approve
	SuperMajority bool    `json:"super_majority"` // 66% threshold in force

	// Parameter-change linkage (empty for general polls).
	ParamName     string `json:"param_name,omitempty"`
	ParamOldValue string `json:"param_old_value,omitempty"`
	ParamNewValue string `json:"param_new_value,omitempty"`

	// ActionID links an emergency_rollback poll to the action it targets,
	// and an executed poll to the action it produced.
	ActionID string `json:"action_id,omitempty"`

	// Running tallies.
	YesCount      int   `json:"yes_count"`
	NoCount       int   `json:"no_count"`
	AbstainCount  int   `json:"abstain_count"`
	YesWeight     int64 `json:"yes_weight"`
	NoWeight      int64 `json:"no_weight"`
	AbstainWeight int64 `json:"abstain_weight"`

	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// TotalVotes is the number of votes cast across all options.
func (p *Poll) TotalVotes() int {
	return p.YesCount + p.NoCount + p.AbstainCount
}

// VotingOpen reports whether votes are accepted at the given instant.
func (p *Poll) VotingOpen(now time.Time) bool {
	return p.Status == PollActive && !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// ─── Vote ───────────────────────────────────────────────────────────────────

// VoteOption is a voter's choice.
type VoteOption string

const (
	OptionYes     VoteOption = "yes"
	OptionNo      VoteOption = "no"
	OptionAbstain VoteOption = "abstain"
)

// Valid reports whether the option is one of the three choices.
func (o VoteOption) Valid() bool {
	return o == OptionYes || o == OptionNo || o == OptionAbstain
}

// MaxVoteChanges bounds how many times one identity may revise a vote.
const MaxVoteChanges = 5

// Vote is a single identity's vote on a poll. (PollID, UserID, Mode) is
// unique. Section and Multiplier are fixed at first cast and survive any
// later change.
type Vote struct {
	PollID string       `json:"poll_id"`
	UserID string       `json:"user_id"`
	Mode   IdentityMode `json:"mode"`

	Option     VoteOption `json:"option"`
	Section    int        `json:"section"`
	Multiplier float64    `json:"multiplier"`
	BaseWeight int64      `json:"base_weight"`
	FinalWeight int64     `json:"final_weight"`

	Reasoning   string `json:"reasoning,omitempty"`
	ChangeCount int    `json:"change_count"`
	Delegated   bool   `json:"delegated"`

	// CastAt is the actual cast time; DisplayedAt carries the jitter that
	// defeats timing correlation between a user's two personas.
	CastAt      time.Time `json:"-"`
	DisplayedAt time.Time `json:"displayed_at"`
}

// ─── Delegation ─────────────────────────────────────────────────────────────

// Delegation routes one identity's votes to a delegate until revoked.
// A manual vote by the delegator always takes precedence.
type Delegation struct {
	DelegatorID string       `json:"delegator_id"`
	Mode        IdentityMode `json:"mode"`
	DelegateID  string       `json:"delegate_id"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ─── Poll results ───────────────────────────────────────────────────────────

// PollResult is the outcome computed when a poll closes.
type PollResult struct {
	PollID     string     `json:"poll_id"`
	Status     PollStatus `json:"status"`
	TotalVotes int        `json:"total_votes"`
	YesPct     float64    `json:"yes_pct"`
	NoPct      float64    `json:"no_pct"`
	AbstainPct float64    `json:"abstain_pct"`
	QuorumMet  bool       `json:"quorum_met"`
	Approved   bool       `json:"approved"`
}
