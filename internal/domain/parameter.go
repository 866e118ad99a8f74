package domain

import "time"

// ─── Parameters ─────────────────────────────────────────────────────────────

// ParamType declares how a parameter's text value is interpreted.
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamDecimal ParamType = "decimal"
	ParamBoolean ParamType = "boolean"
	ParamText    ParamType = "text"
)

// Valid reports whether the type is one of the declared parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case ParamInteger, ParamDecimal, ParamBoolean, ParamText:
		return true
	}
	return false
}

// Parameter is one whitelisted mutable platform setting. Values are always
// stored as text; Type drives validation. Only a completed Action mutates
// Value — polls and rollbacks never write it directly.
type Parameter struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	DefaultValue string    `json:"default_value"`
	Type         ParamType `json:"type"`
	Description  string    `json:"description"`

	// Numeric bounds, inclusive. Nil means unbounded on that side.
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`

	Voteable      bool `json:"voteable"`
	SuperMajority bool `json:"super_majority"`

	// FrozenUntil is set after repeated rollbacks; a zero time means not
	// frozen. Freezes expire by time, no manual sweep required.
	FrozenUntil time.Time `json:"frozen_until,omitempty"`

	// RollbackCount tracks reversals against this parameter. The third
	// rollback triggers a freeze.
	RollbackCount int `json:"rollback_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Frozen reports whether the parameter is frozen at the given instant.
func (p *Parameter) Frozen(now time.Time) bool {
	return !p.FrozenUntil.IsZero() && now.Before(p.FrozenUntil)
}

// ─── Constitution ───────────────────────────────────────────────────────────

// ConstitutionalArticle is a numbered, immutable platform rule. Articles
// are defined in code, seeded into storage for listing, and are never
// created or deleted by governance votes.
type ConstitutionalArticle struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Rule   string `json:"rule"`
}
