package rollback

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/janus-network/janus/internal/app/params"
	"github.com/janus-network/janus/internal/app/reputation"
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

type fixture struct {
	db    *sqlite.DB
	svc   *Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	if err := params.NewService(db).Seed(); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	f := &fixture{
		db:    db,
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	rep := reputation.NewService()
	f.svc = NewService(db, rep, rep, "founder")
	f.svc.now = func() time.Time { return f.clock }
	f.svc.randFloat = func() float64 { return 0.5 }

	err := db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SeedFounderState(10, f.clock.Unix())
	})
	if err != nil {
		t.Fatalf("SeedFounderState() error: %v", err)
	}
	return f
}

// scheduleAction inserts a scheduled action changing minimum_quorum 20->30
// behind a decided poll.
func (f *fixture) scheduleAction(t *testing.T, at domain.ActionType) *domain.Action {
	t.Helper()
	a := &domain.Action{
		ID:          uuid.NewString(),
		PollID:      uuid.NewString(),
		Type:        at,
		Status:      domain.ActionScheduled,
		ParamName:   "minimum_quorum",
		OldValue:    "20",
		NewValue:    "30",
		ScheduledAt: f.clock,
	}
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		p := &domain.Poll{
			ID: a.PollID, Title: "change quorum", Type: domain.PollParameterChange,
			Status: domain.PollApproved, CreatorID: "alice",
			StartsAt: f.clock.Add(-168 * time.Hour), EndsAt: f.clock,
			Quorum: 1, ParamName: a.ParamName, ParamOldValue: a.OldValue,
			ParamNewValue: a.NewValue, CreatedAt: f.clock.Add(-168 * time.Hour),
			ActionID: a.ID,
		}
		if err := tx.InsertPoll(p); err != nil {
			return err
		}
		return tx.InsertAction(a)
	})
	if err != nil {
		t.Fatalf("scheduleAction error: %v", err)
	}
	return a
}

// executedAction runs the sweep so the action is completed with its
// rollback window open.
func (f *fixture) executedAction(t *testing.T, at domain.ActionType) *domain.Action {
	t.Helper()
	f.scheduleAction(t, at)
	processed, err := f.svc.ProcessDueActions()
	if err != nil {
		t.Fatalf("ProcessDueActions() error: %v", err)
	}
	if len(processed) != 1 || processed[0].Status != domain.ActionCompleted {
		t.Fatalf("processed = %+v, want one completed action", processed)
	}
	return &processed[0]
}

func (f *fixture) seedUser(t *testing.T, id string, score int, verified bool) {
	t.Helper()
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		return tx.UpsertUser(id, score, verified, f.clock.Unix())
	})
	if err != nil {
		t.Fatalf("UpsertUser(%s) error: %v", id, err)
	}
}

func (f *fixture) paramValue(t *testing.T, name string) string {
	t.Helper()
	var v string
	err := f.db.Read(func(tx *sqlite.Tx) error {
		p, err := tx.GetParameter(name)
		if err != nil {
			return err
		}
		v = p.Value
		return nil
	})
	if err != nil {
		t.Fatalf("GetParameter(%s) error: %v", name, err)
	}
	return v
}

// approveEmergency forces an emergency poll to approved so it can be
// finalized.
func (f *fixture) approveEmergency(t *testing.T, pollID string) {
	t.Helper()
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		_, e := tx.Exec(`UPDATE polls SET status = 'approved' WHERE id = ?`, pollID)
		return e
	})
	if err != nil {
		t.Fatalf("approveEmergency error: %v", err)
	}
}

// ─── Action execution ───────────────────────────────────────────────────────

func TestProcessDueActions_AppliesParameter(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	if got := f.paramValue(t, "minimum_quorum"); got != "30" {
		t.Errorf("minimum_quorum = %s, want 30 after execution", got)
	}
	if a.RollbackDeadline.Sub(a.ExecutedAt) != 72*time.Hour {
		t.Errorf("rollback window = %v, want 72h for standard", a.RollbackDeadline.Sub(a.ExecutedAt))
	}
}

func TestProcessDueActions_ConstitutionalWindow(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionConstitutional)

	if a.RollbackDeadline.Sub(a.ExecutedAt) != 168*time.Hour {
		t.Errorf("rollback window = %v, want 168h for constitutional", a.RollbackDeadline.Sub(a.ExecutedAt))
	}
}

func TestProcessDueActions_SkipsFuture(t *testing.T) {
	f := newFixture(t)
	a := f.scheduleAction(t, domain.ActionStandard)
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		_, e := tx.Exec(`UPDATE actions SET scheduled_at = ? WHERE id = ?`, f.clock.Add(time.Hour).Unix(), a.ID)
		return e
	})
	if err != nil {
		t.Fatalf("reschedule error: %v", err)
	}

	processed, err := f.svc.ProcessDueActions()
	if err != nil {
		t.Fatalf("ProcessDueActions() error: %v", err)
	}
	if len(processed) != 0 {
		t.Errorf("processed %d future actions, want 0", len(processed))
	}
}

// ─── Window edges ───────────────────────────────────────────────────────────

func TestRollbackWindow_EdgeInclusive(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	// Exactly at the deadline the window is still open.
	f.clock = a.RollbackDeadline
	if _, err := f.svc.FounderRollback("founder", a.ID); err != nil {
		t.Fatalf("rollback at deadline error: %v", err)
	}
}

func TestRollbackWindow_OneSecondPast(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	f.clock = a.RollbackDeadline.Add(time.Second)
	_, err := f.svc.FounderRollback("founder", a.ID)
	if !errors.Is(err, domain.ErrRollbackWindowExpired) {
		t.Fatalf("error = %v, want ErrRollbackWindowExpired", err)
	}
}

// ─── Founder path ───────────────────────────────────────────────────────────

func TestFounderAuthority_Decay(t *testing.T) {
	launch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want int
	}{
		{launch.AddDate(0, 6, 0), 100},
		{launch.AddDate(1, 0, 0), 66},
		{launch.AddDate(1, 11, 0), 66},
		{launch.AddDate(2, 0, 0), 33},
		{launch.AddDate(3, 0, 0), 0},
		{launch.AddDate(10, 0, 0), 0},
	}
	for _, c := range cases {
		if got := FounderAuthority(launch, c.at); got != c.want {
			t.Errorf("FounderAuthority at %s = %d, want %d", c.at.Format("2006-01"), got, c.want)
		}
	}
}

func TestFounderRollback_OpensEmergencyPoll(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	p, err := f.svc.FounderRollback("founder", a.ID)
	if err != nil {
		t.Fatalf("FounderRollback() error: %v", err)
	}
	if p.Type != domain.PollEmergencyRollback {
		t.Errorf("poll type = %s, want emergency_rollback", p.Type)
	}
	// The executed action raised minimum_quorum to 30, so the emergency
	// poll runs on half of that.
	if p.ThresholdPct != 66.0 || p.Quorum != 15 {
		t.Errorf("threshold/quorum = %v/%d, want 66/15", p.ThresholdPct, p.Quorum)
	}
	if p.EndsAt.Sub(p.StartsAt) != 48*time.Hour {
		t.Errorf("window = %v, want 48h", p.EndsAt.Sub(p.StartsAt))
	}
	if p.ParamNewValue != a.OldValue {
		t.Errorf("poll proposes %s, want revert to %s", p.ParamNewValue, a.OldValue)
	}
}

func TestFounderRollback_RejectsImpostor(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	if _, err := f.svc.FounderRollback("mallory", a.ID); !errors.Is(err, domain.ErrNotFounder) {
		t.Fatalf("err = %v, want ErrNotFounder", err)
	}
	if _, err := f.svc.FounderRollback("", a.ID); !errors.Is(err, domain.ErrNotFounder) {
		t.Fatalf("empty id err = %v, want ErrNotFounder", err)
	}

	// A refused caller must not consume a token.
	rep, err := f.svc.Eligibility(a.ID)
	if err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if rep.FounderTokens != 10 {
		t.Errorf("FounderTokens = %d, want 10", rep.FounderTokens)
	}
}

func TestFounderRollback_TokensExhaust(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		a := f.executedAction(t, domain.ActionStandard)
		if _, err := f.svc.FounderRollback("founder", a.ID); err != nil {
			t.Fatalf("rollback #%d error: %v", i+1, err)
		}
	}

	a := f.executedAction(t, domain.ActionStandard)
	_, err := f.svc.FounderRollback("founder", a.ID)
	if !errors.Is(err, domain.ErrFounderTokensExhausted) {
		t.Fatalf("11th rollback error = %v, want ErrFounderTokensExhausted", err)
	}
}

func TestFounderRollback_AuthorityExpired(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	// Jump three years out, then re-open a window by executing a fresh
	// action there.
	f.clock = f.clock.AddDate(3, 0, 0)
	a = f.executedAction(t, domain.ActionStandard)

	_, err := f.svc.FounderRollback("founder", a.ID)
	if !errors.Is(err, domain.ErrFounderAuthorityExpired) {
		t.Fatalf("error = %v, want ErrFounderAuthorityExpired", err)
	}
}

// ─── Petition path ──────────────────────────────────────────────────────────

func TestPetition_EscalatesAtThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	// Lower the signer threshold so the test stays small.
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		return tx.SetParameterValue("petition_min_signers", "3", f.clock.Unix())
	})
	if err != nil {
		t.Fatalf("SetParameterValue() error: %v", err)
	}

	pet, err := f.svc.CreatePetition(a.ID)
	if err != nil {
		t.Fatalf("CreatePetition() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		signer := fmt.Sprintf("signer-%d", i)
		f.seedUser(t, signer, 85, true)
		pet, err = f.svc.SignPetition(pet.ID, signer)
		if err != nil {
			t.Fatalf("SignPetition(%s) error: %v", signer, err)
		}
	}

	if pet.Status != domain.PetitionEscalated || pet.PollID == "" {
		t.Fatalf("petition = %+v, want escalated with poll", pet)
	}
	err = f.db.Read(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(pet.PollID)
		if err != nil {
			return err
		}
		if p.Type != domain.PollEmergencyRollback {
			t.Errorf("escalation poll type = %s, want emergency_rollback", p.Type)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetPoll() error: %v", err)
	}
}

func TestPetition_SignerEligibility(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)
	pet, err := f.svc.CreatePetition(a.ID)
	if err != nil {
		t.Fatalf("CreatePetition() error: %v", err)
	}

	f.seedUser(t, "lowrep", 50, true)
	if _, err := f.svc.SignPetition(pet.ID, "lowrep"); !errors.Is(err, domain.ErrSignerIneligible) {
		t.Errorf("low reputation sign error = %v, want ErrSignerIneligible", err)
	}

	f.seedUser(t, "bot", 90, false)
	if _, err := f.svc.SignPetition(pet.ID, "bot"); !errors.Is(err, domain.ErrNotVerifiedHuman) {
		t.Errorf("unverified sign error = %v, want ErrNotVerifiedHuman", err)
	}

	f.seedUser(t, "alice", 90, true)
	if _, err := f.svc.SignPetition(pet.ID, "alice"); err != nil {
		t.Fatalf("eligible sign error: %v", err)
	}
	if _, err := f.svc.SignPetition(pet.ID, "alice"); !errors.Is(err, domain.ErrDuplicateSignature) {
		t.Errorf("duplicate sign error = %v, want ErrDuplicateSignature", err)
	}
}

func TestCreatePetition_Idempotent(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	p1, err := f.svc.CreatePetition(a.ID)
	if err != nil {
		t.Fatalf("CreatePetition() error: %v", err)
	}
	p2, err := f.svc.CreatePetition(a.ID)
	if err != nil {
		t.Fatalf("second CreatePetition() error: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("second petition %s, want existing %s", p2.ID, p1.ID)
	}
}

// ─── Automatic path ─────────────────────────────────────────────────────────

func TestAutomaticCheck_Triggers(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	// 3 of 10 accounts deleted after execution: 30% > 20%.
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		for i := 0; i < 10; i++ {
			id := fmt.Sprintf("user-%d", i)
			if err := tx.UpsertUser(id, 50, true, f.clock.Add(-time.Hour).Unix()); err != nil {
				return err
			}
		}
		for i := 0; i < 3; i++ {
			if err := tx.MarkUserDeleted(fmt.Sprintf("user-%d", i), f.clock.Add(time.Hour).Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed users error: %v", err)
	}

	f.clock = f.clock.Add(2 * time.Hour)
	p, err := f.svc.AutomaticCheck(a.ID)
	if err != nil {
		t.Fatalf("AutomaticCheck() error: %v", err)
	}
	if p == nil || p.Type != domain.PollEmergencyRollback {
		t.Fatalf("poll = %+v, want emergency poll at 30%% deletions", p)
	}
}

func TestAutomaticCheck_BelowThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		for i := 0; i < 10; i++ {
			if err := tx.UpsertUser(fmt.Sprintf("user-%d", i), 50, true, f.clock.Add(-time.Hour).Unix()); err != nil {
				return err
			}
		}
		return tx.MarkUserDeleted("user-0", f.clock.Add(time.Hour).Unix())
	})
	if err != nil {
		t.Fatalf("seed users error: %v", err)
	}

	f.clock = f.clock.Add(2 * time.Hour)
	p, err := f.svc.AutomaticCheck(a.ID)
	if err != nil {
		t.Fatalf("AutomaticCheck() error: %v", err)
	}
	if p != nil {
		t.Errorf("poll opened at 10%% deletions, want none")
	}
}

// ─── Convergence ────────────────────────────────────────────────────────────

func TestFinalizeEmergency_RevertsParameter(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	p, err := f.svc.FounderRollback("founder", a.ID)
	if err != nil {
		t.Fatalf("FounderRollback() error: %v", err)
	}
	f.approveEmergency(t, p.ID)

	rolled, err := f.svc.FinalizeEmergency(p.ID)
	if err != nil {
		t.Fatalf("FinalizeEmergency() error: %v", err)
	}
	if rolled.Status != domain.ActionRolledBack {
		t.Errorf("action status = %s, want rolled_back", rolled.Status)
	}
	if rolled.RollbackBy == "" {
		t.Error("rollback provenance missing")
	}
	if got := f.paramValue(t, "minimum_quorum"); got != "20" {
		t.Errorf("minimum_quorum = %s, want 20 restored", got)
	}
}

func TestFinalizeEmergency_RequiresApproval(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	p, err := f.svc.FounderRollback("founder", a.ID)
	if err != nil {
		t.Fatalf("FounderRollback() error: %v", err)
	}

	_, err = f.svc.FinalizeEmergency(p.ID)
	if !errors.Is(err, domain.ErrPollNotClosed) {
		t.Fatalf("error = %v, want ErrPollNotClosed on active poll", err)
	}
}

func TestThirdRollback_FreezesParameter(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		a := f.executedAction(t, domain.ActionStandard)
		p, err := f.svc.FounderRollback("founder", a.ID)
		if err != nil {
			t.Fatalf("rollback #%d initiate error: %v", i+1, err)
		}
		f.approveEmergency(t, p.ID)
		if _, err := f.svc.FinalizeEmergency(p.ID); err != nil {
			t.Fatalf("rollback #%d finalize error: %v", i+1, err)
		}
	}

	err := f.db.Read(func(tx *sqlite.Tx) error {
		param, err := tx.GetParameter("minimum_quorum")
		if err != nil {
			return err
		}
		if param.RollbackCount != 3 {
			t.Errorf("rollback count = %d, want 3", param.RollbackCount)
		}
		if !param.Frozen(f.clock) {
			t.Fatal("parameter not frozen after third rollback")
		}
		want := f.clock.AddDate(0, 0, 90)
		if !param.FrozenUntil.Equal(want) {
			t.Errorf("frozen until %v, want %v", param.FrozenUntil, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("error: %v", err)
	}
}

// ─── Eligibility ────────────────────────────────────────────────────────────

func TestEligibility_Report(t *testing.T) {
	f := newFixture(t)
	a := f.executedAction(t, domain.ActionStandard)

	rep, err := f.svc.Eligibility(a.ID)
	if err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if !rep.WithinWindow || rep.WindowRemaining != 72*time.Hour {
		t.Errorf("window = %v/%v, want open with 72h left", rep.WithinWindow, rep.WindowRemaining)
	}
	if !rep.FounderEligible || rep.FounderTokens != 10 || rep.FounderAuthority != 100 {
		t.Errorf("founder = %+v, want eligible with 10 tokens at 100%%", rep)
	}
	if rep.PetitionRequired != 100 || rep.PetitionSigners != 0 {
		t.Errorf("petition = %d/%d, want 0/100", rep.PetitionSigners, rep.PetitionRequired)
	}
	if rep.AutoTriggered {
		t.Error("auto trigger set with no deletions")
	}
}
