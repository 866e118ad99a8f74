package params

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newRegistry(t *testing.T) (*sqlite.DB, *Service) {
	t.Helper()
	db := newTestDB(t)
	svc := NewService(db)
	if err := svc.Seed(); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	return db, svc
}

func validate(t *testing.T, db *sqlite.DB, svc *Service, name, value string) (*Validation, error) {
	t.Helper()
	var v *Validation
	err := db.Read(func(tx *sqlite.Tx) error {
		var err error
		v, err = svc.ValidateValue(tx, name, value)
		return err
	})
	return v, err
}

// ─── Registry Tests ─────────────────────────────────────────────────────────

func TestSeed_Idempotent(t *testing.T) {
	db, svc := newRegistry(t)

	// Change a value, then seed again: the edit must survive.
	err := db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SetParameterValue("minimum_quorum", "35", time.Now().Unix())
	})
	if err != nil {
		t.Fatalf("SetParameterValue() error: %v", err)
	}
	if err := svc.Seed(); err != nil {
		t.Fatalf("second Seed() error: %v", err)
	}

	p, err := svc.Get("minimum_quorum")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Value != "35" {
		t.Errorf("Value = %q after reseed, want %q", p.Value, "35")
	}
	if p.DefaultValue != "20" {
		t.Errorf("DefaultValue = %q, want %q", p.DefaultValue, "20")
	}

	all, err := svc.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 13 {
		t.Errorf("List() = %d parameters, want 13", len(all))
	}
}

func TestValidateValue_Accepts(t *testing.T) {
	db, svc := newRegistry(t)

	v, err := validate(t, db, svc, "reputation_floor", "75")
	if err != nil {
		t.Fatalf("ValidateValue() error: %v", err)
	}
	if v.Param.Name != "reputation_floor" {
		t.Errorf("Param.Name = %q", v.Param.Name)
	}
	if len(v.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", v.Warnings)
	}
}

func TestValidateValue_UnknownParameter(t *testing.T) {
	db, svc := newRegistry(t)

	if _, err := validate(t, db, svc, "no_such_knob", "1"); !errors.Is(err, domain.ErrUnknownParameter) {
		t.Fatalf("err = %v, want ErrUnknownParameter", err)
	}
}

func TestValidateValue_NotVoteable(t *testing.T) {
	db, svc := newRegistry(t)

	if _, err := validate(t, db, svc, "shadow_voting_enabled", "false"); !errors.Is(err, domain.ErrParameterNotVoteable) {
		t.Fatalf("err = %v, want ErrParameterNotVoteable", err)
	}
}

func TestValidateValue_TypeMismatch(t *testing.T) {
	db, svc := newRegistry(t)

	cases := []struct{ name, value string }{
		{"minimum_quorum", "twenty"},
		{"minimum_quorum", "20.5"},
		{"multiplier_min", "soft"},
	}
	for _, c := range cases {
		if _, err := validate(t, db, svc, c.name, c.value); !errors.Is(err, domain.ErrInvalidParameter) {
			t.Errorf("%s=%q: err = %v, want ErrInvalidParameter", c.name, c.value, err)
		}
	}
}

func TestValidateValue_Bounds(t *testing.T) {
	db, svc := newRegistry(t)

	// Inclusive edges pass; one past either edge fails.
	if _, err := validate(t, db, svc, "reputation_floor", "0"); err != nil {
		t.Errorf("floor 0: unexpected error %v", err)
	}
	if _, err := validate(t, db, svc, "reputation_floor", "100"); err != nil {
		t.Errorf("floor 100: unexpected error %v", err)
	}
	if _, err := validate(t, db, svc, "reputation_floor", "101"); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("floor 101: err = %v, want ErrInvalidParameter", err)
	}
	if _, err := validate(t, db, svc, "multiplier_min", "0.05"); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("multiplier_min 0.05: err = %v, want ErrInvalidParameter", err)
	}
}

func TestValidateValue_Warnings(t *testing.T) {
	db, svc := newRegistry(t)

	// Same value as current: advisory only.
	v, err := validate(t, db, svc, "voting_window_hours", "168")
	if err != nil {
		t.Fatalf("ValidateValue() error: %v", err)
	}
	if len(v.Warnings) != 1 || !strings.Contains(v.Warnings[0], "equals the current value") {
		t.Errorf("Warnings = %v, want equal-value warning", v.Warnings)
	}

	// Super-majority parameters warn but never block.
	v, err = validate(t, db, svc, "minimum_quorum", "30")
	if err != nil {
		t.Fatalf("ValidateValue() error: %v", err)
	}
	found := false
	for _, w := range v.Warnings {
		if strings.Contains(w, "super-majority") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want super-majority warning", v.Warnings)
	}
}

func TestValidateValue_FrozenAndUnfreeze(t *testing.T) {
	db, svc := newRegistry(t)

	until := time.Now().Add(30 * 24 * time.Hour).Unix()
	err := db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SetParameterFreeze("minimum_stake", sql.NullInt64{Int64: until, Valid: true}, time.Now().Unix())
	})
	if err != nil {
		t.Fatalf("SetParameterFreeze() error: %v", err)
	}

	if _, err := validate(t, db, svc, "minimum_stake", "25"); !errors.Is(err, domain.ErrParameterFrozen) {
		t.Fatalf("err = %v, want ErrParameterFrozen", err)
	}

	if err := svc.Unfreeze("minimum_stake"); err != nil {
		t.Fatalf("Unfreeze() error: %v", err)
	}
	if _, err := validate(t, db, svc, "minimum_stake", "25"); err != nil {
		t.Fatalf("ValidateValue() after Unfreeze error: %v", err)
	}
}

func TestValidateValue_ExpiredFreezeIgnored(t *testing.T) {
	db, svc := newRegistry(t)

	past := time.Now().Add(-time.Hour).Unix()
	err := db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SetParameterFreeze("minimum_stake", sql.NullInt64{Int64: past, Valid: true}, time.Now().Unix())
	})
	if err != nil {
		t.Fatalf("SetParameterFreeze() error: %v", err)
	}
	if _, err := validate(t, db, svc, "minimum_stake", "25"); err != nil {
		t.Fatalf("ValidateValue() error: %v, expired freeze should not block", err)
	}
}

func TestValidateValue_Boolean(t *testing.T) {
	// No voteable boolean is seeded, so exercise checkType directly.
	p := &domain.Parameter{Name: "flag", Type: domain.ParamBoolean}
	if err := checkType(p, "true"); err != nil {
		t.Errorf("true: unexpected error %v", err)
	}
	if err := checkType(p, "yes"); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("yes: err = %v, want ErrInvalidParameter", err)
	}
}
