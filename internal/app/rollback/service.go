// Package rollback implements the action executor and the three-path
// emergency rollback protocol: founder tokens, verified petitions, and the
// automatic deletion-rate trigger. Every path converges on an emergency
// rollback poll; only a passed poll reverts anything.
package rollback

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/janus-network/janus/internal/app/poll"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Rollback Service
// ═══════════════════════════════════════════════════════════════════════════

const (
	// Emergency rollback polls run on a compressed schedule: 48 hours,
	// half the normal quorum, two-thirds threshold.
	emergencyWindow    = 48 * time.Hour
	emergencyThreshold = 66.0

	// signerMinReputation gates petition signatures.
	signerMinReputation = 70

	// autoDeletionPct is the account-deletion share since execution that
	// trips the automatic trigger.
	autoDeletionPct = 20.0

	// freezeAfterRollbacks locks a parameter against further change once
	// it has been rolled back this many times.
	freezeAfterRollbacks = 3
)

// Service executes scheduled actions and runs the rollback protocol.
type Service struct {
	db         *sqlite.DB
	reputation domain.Reputation
	identity   domain.Identity
	founderID  string

	now       func() time.Time
	randFloat func() float64
}

// NewService wires the rollback service. founderID is the one identity
// allowed to spend founder tokens.
func NewService(db *sqlite.DB, rep domain.Reputation, id domain.Identity, founderID string) *Service {
	return &Service{
		db:         db,
		reputation: rep,
		identity:   id,
		founderID:  founderID,
		now:        time.Now,
		randFloat:  rand.Float64,
	}
}

// ─── Action execution ───────────────────────────────────────────────────────

// ProcessDueActions applies every scheduled action whose time has come and
// opens its rollback window. Each action commits independently; a failed
// one is marked failed and does not block the rest.
func (s *Service) ProcessDueActions() ([]domain.Action, error) {
	var due []domain.Action
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		due, err = tx.DueActions(s.now().Unix())
		return err
	})
	if err != nil {
		return nil, err
	}

	var processed []domain.Action
	for _, a := range due {
		if err := s.executeAction(&a); err != nil {
			markErr := s.db.WithTx(func(tx *sqlite.Tx) error {
				return tx.MarkActionFailed(a.ID, err.Error())
			})
			if markErr != nil {
				log.Printf("[rollback] action %s failed (%v) and could not be marked failed: %v", a.ID, err, markErr)
			}
			a.Status = domain.ActionFailed
			a.Error = err.Error()
		}
		processed = append(processed, a)
	}
	return processed, nil
}

func (s *Service) executeAction(a *domain.Action) error {
	return s.db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.MarkActionExecuting(a.ID); err != nil {
			return err
		}
		now := s.now()
		if err := tx.SetParameterValue(a.ParamName, a.NewValue, now.Unix()); err != nil {
			return err
		}
		deadline := now.Add(a.Type.RollbackWindow())
		if err := tx.MarkActionCompleted(a.ID, now.Unix(), deadline.Unix()); err != nil {
			return err
		}
		a.Status = domain.ActionCompleted
		a.ExecutedAt = now
		a.RollbackDeadline = deadline
		return tx.UpdatePollStatus(a.PollID, domain.PollExecuted, sql.NullInt64{})
	})
}

// ─── Founder path ───────────────────────────────────────────────────────────

// FounderAuthority is the year-stepped decay of the founder's unilateral
// power: 100% in year one, 66%, 33%, then zero for good.
func FounderAuthority(launchedAt, now time.Time) int {
	years := 0
	for t := launchedAt.AddDate(1, 0, 0); !now.Before(t); t = t.AddDate(1, 0, 0) {
		years++
	}
	switch years {
	case 0:
		return 100
	case 1:
		return 66
	case 2:
		return 33
	default:
		return 0
	}
}

// FounderRollback spends one founder token to open an emergency rollback
// poll against a completed action. The founder never reverts anything
// directly; the community still votes.
func (s *Service) FounderRollback(founderID, actionID string) (*domain.Poll, error) {
	if founderID == "" || founderID != s.founderID {
		return nil, domain.ErrNotFounder
	}
	var p *domain.Poll
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		a, err := s.rollbackTarget(tx, actionID)
		if err != nil {
			return err
		}
		tokens, launched, err := tx.FounderState()
		if err != nil {
			return err
		}
		authority := FounderAuthority(time.Unix(launched, 0), s.now())
		if authority == 0 {
			return domain.ErrFounderAuthorityExpired
		}
		if err := tx.ConsumeFounderToken(); err != nil {
			return err
		}
		init := domain.FounderUnilateral{
			FounderID:       founderID,
			TokensRemaining: tokens - 1,
			AuthorityPct:    authority,
		}
		p, err = s.openEmergencyPoll(tx, a, init)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ─── Petition path ──────────────────────────────────────────────────────────

// CreatePetition opens a signature drive against a completed action. One
// open petition per action; repeated calls return the existing one.
func (s *Service) CreatePetition(actionID string) (*domain.Petition, error) {
	var pet *domain.Petition
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		if _, err := s.rollbackTarget(tx, actionID); err != nil {
			return err
		}
		existing, err := tx.OpenPetitionForAction(actionID)
		if err == nil {
			pet = existing
			return nil
		}
		if !errors.Is(err, domain.ErrPetitionNotFound) {
			return err
		}
		pet = &domain.Petition{
			ID:        uuid.NewString(),
			ActionID:  actionID,
			Status:    domain.PetitionOpen,
			CreatedAt: s.now(),
		}
		return tx.InsertPetition(pet)
	})
	if err != nil {
		return nil, err
	}
	return pet, nil
}

// SignPetition records one verified, high-reputation signature. Reaching
// the signer threshold escalates the petition into an emergency poll in
// the same transaction.
func (s *Service) SignPetition(petitionID, userID string) (*domain.Petition, error) {
	var pet *domain.Petition
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		var err error
		pet, err = tx.GetPetition(petitionID)
		if err != nil {
			return err
		}
		if pet.Status != domain.PetitionOpen {
			return domain.ErrPetitionClosed
		}
		a, err := s.rollbackTarget(tx, pet.ActionID)
		if err != nil {
			return err
		}

		verified, err := s.identity.IsVerifiedHuman(tx, userID)
		if err != nil {
			return err
		}
		if !verified {
			return domain.ErrNotVerifiedHuman
		}
		score, err := s.reputation.Score(tx, userID)
		if err != nil {
			return err
		}
		if score < signerMinReputation {
			return fmt.Errorf("%w: score %d below %d", domain.ErrSignerIneligible, score, signerMinReputation)
		}

		if err := tx.InsertSignature(petitionID, userID, s.now().Unix()); err != nil {
			return err
		}
		pet.Signers++

		required := s.paramInt(tx, "petition_min_signers", 100)
		if pet.Signers < required {
			return nil
		}
		p, err := s.openEmergencyPoll(tx, a, domain.VerifiedPetition{
			PetitionID:  petitionID,
			SignerCount: pet.Signers,
		})
		if err != nil {
			return err
		}
		pet.Status = domain.PetitionEscalated
		pet.PollID = p.ID
		return tx.EscalatePetition(petitionID, p.ID)
	})
	if err != nil {
		return nil, err
	}
	return pet, nil
}

// ─── Automatic path ─────────────────────────────────────────────────────────

// AutomaticCheck evaluates the deletion-rate heuristic for a completed
// action and opens an emergency poll when it trips. Returns the poll when
// one was opened, nil otherwise.
func (s *Service) AutomaticCheck(actionID string) (*domain.Poll, error) {
	var p *domain.Poll
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		a, err := s.rollbackTarget(tx, actionID)
		if err != nil {
			return err
		}
		total, deleted, err := tx.DeletionStats(a.ExecutedAt.Unix())
		if err != nil {
			return err
		}
		if total == 0 {
			return nil
		}
		rate := 100 * float64(deleted) / float64(total)
		if rate <= autoDeletionPct {
			return nil
		}
		p, err = s.openEmergencyPoll(tx, a, domain.AutomaticTrigger{
			Reasons: []string{fmt.Sprintf("account deletion rate %.1f%% since execution", rate)},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ─── Convergence ────────────────────────────────────────────────────────────

// openEmergencyPoll is where all three initiation paths meet. The poll's
// description carries the initiator provenance so the eventual rollback
// records who forced the vote.
func (s *Service) openEmergencyPoll(tx *sqlite.Tx, a *domain.Action, init domain.RollbackInitiator) (*domain.Poll, error) {
	now := s.now()
	mMin := s.paramFloat(tx, "multiplier_min", 0.7)
	mMax := s.paramFloat(tx, "multiplier_max", 1.5)
	p := &domain.Poll{
		ID:            uuid.NewString(),
		Title:         fmt.Sprintf("Emergency rollback: %s", a.ParamName),
		Description:   init.Describe(),
		Type:          domain.PollEmergencyRollback,
		Status:        domain.PollActive,
		CreatorID:     domain.AccountFounder,
		StartsAt:      now,
		EndsAt:        now.Add(emergencyWindow),
		Multipliers:   poll.GenerateMultipliers(s.randFloat, mMin, mMax),
		Quorum:        s.paramInt(tx, "minimum_quorum", 20) / 2,
		ThresholdPct:  emergencyThreshold,
		SuperMajority: true,
		ParamName:     a.ParamName,
		ParamOldValue: a.NewValue,
		ParamNewValue: a.OldValue,
		ActionID:      a.ID,
		CreatedAt:     now,
	}
	if err := tx.InsertPoll(p); err != nil {
		return nil, err
	}
	err := tx.InsertStakePool(&domain.StakePool{
		PollID:    p.ID,
		Status:    domain.PoolOpen,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FinalizeEmergency resolves a closed emergency rollback poll. An approved
// poll reverts the target parameter, stamps the action rolled back with the
// initiator provenance, and freezes the parameter after its third rollback.
func (s *Service) FinalizeEmergency(pollID string) (*domain.Action, error) {
	var a *domain.Action
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(pollID)
		if err != nil {
			return err
		}
		if p.Type != domain.PollEmergencyRollback {
			return fmt.Errorf("%w: not an emergency rollback poll", domain.ErrInvalidPollType)
		}
		if p.Status != domain.PollApproved {
			return domain.ErrPollNotClosed
		}
		a, err = tx.GetAction(p.ActionID)
		if err != nil {
			return err
		}
		return s.executeRollback(tx, a, p.Description)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) executeRollback(tx *sqlite.Tx, a *domain.Action, provenance string) error {
	now := s.now()
	if a.Status != domain.ActionCompleted {
		return domain.ErrActionNotCompleted
	}
	if !a.WithinRollbackWindow(now) {
		return domain.ErrRollbackWindowExpired
	}

	param, err := tx.GetParameter(a.ParamName)
	if err != nil {
		return err
	}
	if err := tx.SetParameterValue(a.ParamName, a.OldValue, now.Unix()); err != nil {
		return err
	}

	var frozen sql.NullInt64
	if param.RollbackCount+1 >= freezeAfterRollbacks {
		days := s.paramInt(tx, "rollback_freeze_days", 90)
		frozen = sql.NullInt64{Int64: now.AddDate(0, 0, days).Unix(), Valid: true}
	}
	if _, err := tx.RecordParameterRollback(a.ParamName, frozen, now.Unix()); err != nil {
		return err
	}

	if err := tx.MarkActionRolledBack(a.ID, provenance, now.Unix()); err != nil {
		return err
	}
	a.Status = domain.ActionRolledBack
	a.RolledBackAt = now
	a.RollbackBy = provenance
	return nil
}

// ─── Eligibility ────────────────────────────────────────────────────────────

// Eligibility reports every rollback path still open against an action.
func (s *Service) Eligibility(actionID string) (*domain.RollbackEligibility, error) {
	rep := &domain.RollbackEligibility{ActionID: actionID}
	err := s.db.Read(func(tx *sqlite.Tx) error {
		a, err := tx.GetAction(actionID)
		if err != nil {
			return err
		}
		now := s.now()
		rep.WithinWindow = a.Status == domain.ActionCompleted && a.WithinRollbackWindow(now)
		if rep.WithinWindow {
			rep.WindowRemaining = a.RollbackDeadline.Sub(now)
		}

		tokens, launched, err := tx.FounderState()
		if err != nil {
			return err
		}
		rep.FounderTokens = tokens
		rep.FounderAuthority = FounderAuthority(time.Unix(launched, 0), now)
		rep.FounderEligible = rep.WithinWindow && tokens > 0 && rep.FounderAuthority > 0

		rep.PetitionRequired = s.paramInt(tx, "petition_min_signers", 100)
		if pet, err := tx.OpenPetitionForAction(actionID); err == nil {
			rep.PetitionSigners = pet.Signers
		} else if !errors.Is(err, domain.ErrPetitionNotFound) {
			return err
		}

		if a.Status == domain.ActionCompleted {
			total, deleted, err := tx.DeletionStats(a.ExecutedAt.Unix())
			if err != nil {
				return err
			}
			if total > 0 {
				rep.DeletionRatePct = 100 * float64(deleted) / float64(total)
			}
			rep.AutoTriggered = rep.WithinWindow && rep.DeletionRatePct > autoDeletionPct
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// rollbackTarget loads an action and verifies it can still be rolled back.
func (s *Service) rollbackTarget(tx *sqlite.Tx, actionID string) (*domain.Action, error) {
	a, err := tx.GetAction(actionID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.ActionCompleted {
		return nil, domain.ErrActionNotCompleted
	}
	if !a.WithinRollbackWindow(s.now()) {
		return nil, domain.ErrRollbackWindowExpired
	}
	return a, nil
}

func (s *Service) paramInt(tx *sqlite.Tx, name string, def int) int {
	p, err := tx.GetParameter(name)
	if err != nil {
		return def
	}
	v, err := strconv.Atoi(p.Value)
	if err != nil {
		return def
	}
	return v
}

func (s *Service) paramFloat(tx *sqlite.Tx, name string, def float64) float64 {
	p, err := tx.GetParameter(name)
	if err != nil {
		return def
	}
	v, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return def
	}
	return v
}
