package domain

import (
	"fmt"
	"time"
)

// ─── Actions ────────────────────────────────────────────────────────────────

// ActionType determines the rollback window length.
type ActionType string

const (
	ActionStandard       ActionType = "standard"
	ActionConstitutional ActionType = "constitutional"
)

// RollbackWindow is how long after execution the action stays reversible.
func (t ActionType) RollbackWindow() time.Duration {
	if t == ActionConstitutional {
		return 168 * time.Hour
	}
	return 72 * time.Hour
}

// ActionStatus is the action execution state machine:
// scheduled → executing → completed → rolled_back, or executing → failed.
// Failed actions are terminal and never retried automatically.
type ActionStatus string

const (
	ActionScheduled  ActionStatus = "scheduled"
	ActionExecuting  ActionStatus = "executing"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionRolledBack ActionStatus = "rolled_back"
)

// Action is the execution of an approved poll's effect. It is the sole
// mutator of a Parameter's current value.
type Action struct {
	ID     string       `json:"id"`
	PollID string       `json:"poll_id"`
	Type   ActionType   `json:"type"`
	Status ActionStatus `json:"status"`

	ParamName string `json:"param_name"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`

	ScheduledAt time.Time `json:"scheduled_at"`
	ExecutedAt  time.Time `json:"executed_at,omitempty"`

	// RollbackDeadline = ExecutedAt + Type.RollbackWindow(). The deadline
	// itself is still eligible; one second past it is not.
	RollbackDeadline time.Time `json:"rollback_deadline,omitempty"`

	RolledBackAt time.Time `json:"rolled_back_at,omitempty"`
	RollbackBy   string    `json:"rollback_by,omitempty"` // initiator provenance

	Error string `json:"error,omitempty"` // recorded when Status is failed
}

// WithinRollbackWindow reports whether a rollback may still target this
// action. An action executed exactly window-ago is at the edge and eligible.
func (a *Action) WithinRollbackWindow(now time.Time) bool {
	if a.RollbackDeadline.IsZero() {
		return false
	}
	return !now.After(a.RollbackDeadline)
}

// ─── Rollback initiation ────────────────────────────────────────────────────

// RollbackInitiator is the tagged variant describing who is reversing an
// action. Each variant carries exactly the data needed to validate its own
// eligibility.
type RollbackInitiator interface {
	// Describe returns the provenance string stored on the action.
	Describe() string

	rollbackInitiator()
}

// FounderUnilateral is the founder's lifetime token bucket path.
type FounderUnilateral struct {
	FounderID       string `json:"founder_id"`
	TokensRemaining int    `json:"tokens_remaining"`
	AuthorityPct    int    `json:"authority_pct"`
}

func (f FounderUnilateral) Describe() string {
	return fmt.Sprintf("founder:%s (tokens_left=%d authority=%d%%)", f.FounderID, f.TokensRemaining, f.AuthorityPct)
}
func (FounderUnilateral) rollbackInitiator() {}

// VerifiedPetition is the community petition path.
type VerifiedPetition struct {
	PetitionID  string `json:"petition_id"`
	SignerCount int    `json:"signer_count"`
}

func (p VerifiedPetition) Describe() string {
	return fmt.Sprintf("petition:%s (signers=%d)", p.PetitionID, p.SignerCount)
}
func (VerifiedPetition) rollbackInitiator() {}

// AutomaticTrigger is the system-heuristic path.
type AutomaticTrigger struct {
	Reasons []string `json:"reasons"`
}

func (a AutomaticTrigger) Describe() string {
	return fmt.Sprintf("automatic:%v", a.Reasons)
}
func (AutomaticTrigger) rollbackInitiator() {}

// ─── Petitions ──────────────────────────────────────────────────────────────

// PetitionStatus is the petition lifecycle state.
type PetitionStatus string

const (
	PetitionOpen      PetitionStatus = "open"
	PetitionEscalated PetitionStatus = "escalated" // threshold met, rollback poll created
	PetitionExpired   PetitionStatus = "expired"
)

// Petition collects verified signatures demanding a rollback poll. The
// petition itself never rolls anything back.
type Petition struct {
	ID        string         `json:"id"`
	ActionID  string         `json:"action_id"`
	Status    PetitionStatus `json:"status"`
	Signers   int            `json:"signers"`
	PollID    string         `json:"poll_id,omitempty"` // set once escalated
	CreatedAt time.Time      `json:"created_at"`
}

// ─── Eligibility report ─────────────────────────────────────────────────────

// RollbackEligibility is a point-in-time view of every rollback path open
// against one action.
type RollbackEligibility struct {
	ActionID        string        `json:"action_id"`
	WithinWindow    bool          `json:"within_window"`
	WindowRemaining time.Duration `json:"window_remaining"`

	FounderTokens    int  `json:"founder_tokens"`
	FounderAuthority int  `json:"founder_authority_pct"`
	FounderEligible  bool `json:"founder_eligible"`

	PetitionSigners  int  `json:"petition_signers"`
	PetitionRequired int  `json:"petition_required"`

	DeletionRatePct float64 `json:"deletion_rate_pct"`
	AutoTriggered   bool    `json:"auto_triggered"`
}
