// Package params implements the whitelist of governable platform
// parameters and the constitutional guard that sits above it. Values are
// stored as text with a declared type; validation checks type conformance,
// inclusive numeric bounds, and voteable/frozen status.
package params

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// Service manages the parameter registry.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a parameter registry service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// ─── Validation ─────────────────────────────────────────────────────────────

// Validation is the outcome of checking a proposed value. Warnings are
// advisory and never block poll creation.
type Validation struct {
	Param    *domain.Parameter `json:"param"`
	Warnings []string          `json:"warnings,omitempty"`
}

// ValidateValue checks a proposed parameter value against the registry
// inside the given transaction. Hard failures: unknown parameter, not
// voteable, frozen, type mismatch, out of bounds. Non-blocking warnings:
// value equals current, super-majority required.
func (s *Service) ValidateValue(tx *sqlite.Tx, name, value string) (*Validation, error) {
	p, err := tx.GetParameter(name)
	if err != nil {
		return nil, err
	}

	if !p.Voteable {
		return nil, fmt.Errorf("%w: %s", domain.ErrParameterNotVoteable, name)
	}
	if p.Frozen(s.now()) {
		return nil, fmt.Errorf("%w: %s until %s", domain.ErrParameterFrozen, name,
			p.FrozenUntil.UTC().Format(time.RFC3339))
	}
	if err := checkType(p, value); err != nil {
		return nil, err
	}

	v := &Validation{Param: p}
	if value == p.Value {
		v.Warnings = append(v.Warnings, "proposed value equals the current value")
	}
	if p.SuperMajority {
		v.Warnings = append(v.Warnings, "parameter requires a super-majority (66%) to change")
	}
	return v, nil
}

// checkType enforces type conformance and inclusive numeric bounds.
func checkType(p *domain.Parameter, value string) error {
	switch p.Type {
	case domain.ParamInteger:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer, got %q", domain.ErrInvalidParameter, p.Name, value)
		}
		return checkBounds(p, float64(n))
	case domain.ParamDecimal:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s expects a decimal, got %q", domain.ErrInvalidParameter, p.Name, value)
		}
		return checkBounds(p, f)
	case domain.ParamBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s expects true or false, got %q", domain.ErrInvalidParameter, p.Name, value)
		}
	case domain.ParamText:
		// any text
	default:
		return fmt.Errorf("%w: %s has unknown type %q", domain.ErrInvalidParameter, p.Name, p.Type)
	}
	return nil
}

func checkBounds(p *domain.Parameter, v float64) error {
	if p.MinValue != nil && v < *p.MinValue {
		return fmt.Errorf("%w: %s value %g below minimum %g", domain.ErrInvalidParameter, p.Name, v, *p.MinValue)
	}
	if p.MaxValue != nil && v > *p.MaxValue {
		return fmt.Errorf("%w: %s value %g above maximum %g", domain.ErrInvalidParameter, p.Name, v, *p.MaxValue)
	}
	return nil
}

// ─── Access ─────────────────────────────────────────────────────────────────

// Get returns a parameter by name.
func (s *Service) Get(name string) (*domain.Parameter, error) {
	var p *domain.Parameter
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		p, err = tx.GetParameter(name)
		return err
	})
	return p, err
}

// List returns all registered parameters.
func (s *Service) List() ([]domain.Parameter, error) {
	var out []domain.Parameter
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		out, err = tx.ListParameters()
		return err
	})
	return out, err
}

// Unfreeze clears a parameter's freeze window manually.
func (s *Service) Unfreeze(name string) error {
	return s.db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SetParameterFreeze(name, sql.NullInt64{}, s.now().Unix())
	})
}

// ─── Defaults ───────────────────────────────────────────────────────────────

// Seed registers the default governable parameters and the constitutional
// articles. Idempotent: existing parameter rows keep their current values.
func (s *Service) Seed() error {
	return s.db.WithTx(func(tx *sqlite.Tx) error {
		now := s.now()
		for _, p := range defaultParameters() {
			p.UpdatedAt = now
			if err := tx.SeedParameter(&p); err != nil {
				return fmt.Errorf("seed %s: %w", p.Name, err)
			}
		}
		for _, a := range Articles() {
			if err := tx.SeedArticle(a); err != nil {
				return fmt.Errorf("seed article %d: %w", a.Number, err)
			}
		}
		return nil
	})
}

func fptr(v float64) *float64 { return &v }

// defaultParameters is the seeded registry. These are the platform
// settings the community can vote to change.
func defaultParameters() []domain.Parameter {
	return []domain.Parameter{
		// Governance mechanics
		{Name: "poll_creation_cost", Value: "1000", DefaultValue: "1000", Type: domain.ParamInteger,
			MinValue: fptr(100), MaxValue: fptr(100000), Voteable: true,
			Description: "PollCoin cost to create a poll"},
		{Name: "minimum_quorum", Value: "20", DefaultValue: "20", Type: domain.ParamInteger,
			MinValue: fptr(1), MaxValue: fptr(100000), Voteable: true, SuperMajority: true,
			Description: "Minimum total votes for a binding poll result"},
		{Name: "voting_window_hours", Value: "168", DefaultValue: "168", Type: domain.ParamInteger,
			MinValue: fptr(24), MaxValue: fptr(720), Voteable: true,
			Description: "Default poll voting window"},
		{Name: "reputation_floor", Value: "60", DefaultValue: "60", Type: domain.ParamInteger,
			MinValue: fptr(0), MaxValue: fptr(100), Voteable: true,
			Description: "Minimum reputation score to create polls"},
		{Name: "max_vote_changes", Value: "5", DefaultValue: "5", Type: domain.ParamInteger,
			MinValue: fptr(0), MaxValue: fptr(20), Voteable: true,
			Description: "How many times one identity may revise a vote"},

		// Weighting and obfuscation
		{Name: "multiplier_min", Value: "0.7", DefaultValue: "0.7", Type: domain.ParamDecimal,
			MinValue: fptr(0.1), MaxValue: fptr(1.0), Voteable: true, SuperMajority: true,
			Description: "Lower bound of the section multiplier range"},
		{Name: "multiplier_max", Value: "1.5", DefaultValue: "1.5", Type: domain.ParamDecimal,
			MinValue: fptr(1.0), MaxValue: fptr(3.0), Voteable: true, SuperMajority: true,
			Description: "Upper bound of the section multiplier range"},
		{Name: "vote_jitter_seconds", Value: "7200", DefaultValue: "7200", Type: domain.ParamInteger,
			MinValue: fptr(0), MaxValue: fptr(86400), Voteable: true, SuperMajority: true,
			Description: "Maximum random delay on displayed vote timestamps"},

		// Staking
		{Name: "minimum_stake", Value: "10", DefaultValue: "10", Type: domain.ParamInteger,
			MinValue: fptr(1), MaxValue: fptr(10000), Voteable: true,
			Description: "Minimum Gratium stake on a poll outcome"},

		// Identity protections — constitutionally guarded, not voteable.
		{Name: "shadow_voting_enabled", Value: "true", DefaultValue: "true", Type: domain.ParamBoolean,
			Voteable: false, Description: "Whether Shadow persona voting is active"},
		{Name: "dual_identity_required", Value: "true", DefaultValue: "true", Type: domain.ParamBoolean,
			Voteable: false, Description: "Whether every participant holds two personas"},

		// Rollback protocol
		{Name: "petition_min_signers", Value: "100", DefaultValue: "100", Type: domain.ParamInteger,
			MinValue: fptr(10), MaxValue: fptr(100000), Voteable: true, SuperMajority: true,
			Description: "Distinct verified signers required to escalate a rollback petition"},
		{Name: "rollback_freeze_days", Value: "90", DefaultValue: "90", Type: domain.ParamInteger,
			MinValue: fptr(1), MaxValue: fptr(365), Voteable: true, SuperMajority: true,
			Description: "Freeze period after a parameter's third rollback"},
	}
}
