package poll

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/janus-network/janus/internal/app/params"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Poll Service
// ═══════════════════════════════════════════════════════════════════════════

// Service owns the poll lifecycle. Every mutating operation runs in a single
// store transaction together with its ledger and reputation effects, so a
// failed collaborator call aborts the whole operation.
type Service struct {
	db         *sqlite.DB
	ledger     domain.Ledger
	reputation domain.Reputation
	identity   domain.Identity
	registry   *params.Service
	guard      *params.Guard

	now       func() time.Time
	randFloat func() float64
}

// NewService wires a poll service against the store and its collaborators.
func NewService(db *sqlite.DB, ledger domain.Ledger, rep domain.Reputation, id domain.Identity, registry *params.Service, guard *params.Guard) *Service {
	return &Service{
		db:         db,
		ledger:     ledger,
		reputation: rep,
		identity:   id,
		registry:   registry,
		guard:      guard,
		now:        time.Now,
		randFloat:  rand.Float64,
	}
}

// CreatePollRequest carries the caller-supplied fields of a new poll.
type CreatePollRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        domain.PollType `json:"type"`

	// Set for parameter_change and constitutional polls.
	ParamName  string `json:"param_name,omitempty"`
	ParamValue string `json:"param_value,omitempty"`

	// Optional overrides; zero values take the live governance defaults.
	Duration time.Duration `json:"duration,omitempty"`
	Quorum   int           `json:"quorum,omitempty"`
}

// CreatePoll validates eligibility, charges the creation cost (1% burned,
// 99% to the rewards pool), generates the section multiplier table, and
// opens the poll with its stake pool.
func (s *Service) CreatePoll(creatorID string, mode domain.IdentityMode, req CreatePollRequest) (*domain.Poll, error) {
	if req.Title == "" {
		return nil, domain.ErrTitleRequired
	}
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidPollType
	}
	// Emergency rollback polls are opened only by the rollback protocol,
	// never by direct creation.
	if req.Type == domain.PollEmergencyRollback {
		return nil, fmt.Errorf("%w: %s polls cannot be created directly", domain.ErrInvalidPollType, req.Type)
	}
	if !mode.IsVoting() {
		return nil, domain.ErrInvalidIdentity
	}

	var p *domain.Poll
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		verified, err := s.identity.IsVerifiedHuman(tx, creatorID)
		if err != nil {
			return err
		}
		if !verified {
			return domain.ErrNotVerifiedHuman
		}

		floor := s.paramInt(tx, "reputation_floor", 60)
		score, err := s.reputation.Score(tx, creatorID)
		if err != nil {
			return err
		}
		if score < floor {
			return fmt.Errorf("%w: score %d below floor %d", domain.ErrInsufficientReputation, score, floor)
		}

		now := s.now()
		superMajority := req.Type.RequiresSuperMajority()
		var oldValue string

		if req.Type == domain.PollParameterChange || req.Type == domain.PollConstitutional {
			// Constitutional check runs before value validation so an
			// unconstitutional proposal is rejected as such even when the
			// value itself would also be malformed.
			if err := s.guard.Check(req.ParamName, req.ParamValue, req.Description); err != nil {
				return err
			}
			v, err := s.registry.ValidateValue(tx, req.ParamName, req.ParamValue)
			if err != nil {
				return err
			}
			oldValue = v.Param.Value
			if v.Param.SuperMajority {
				superMajority = true
			}
		} else if req.ParamName != "" {
			return fmt.Errorf("%w: %s polls carry no parameter", domain.ErrInvalidParameter, req.Type)
		}

		cost := int64(s.paramInt(tx, "poll_creation_cost", 1000))
		if err := s.ledger.Debit(tx, creatorID, mode, domain.TokenPollCoin, cost, "poll creation"); err != nil {
			return err
		}
		burn := cost / 100
		if err := s.ledger.Credit(tx, domain.AccountBurn, domain.ModeSystem, domain.TokenPollCoin, burn, "poll creation burn"); err != nil {
			return err
		}
		if err := s.ledger.Credit(tx, domain.AccountRewards, domain.ModeSystem, domain.TokenPollCoin, cost-burn, "poll creation reward pool"); err != nil {
			return err
		}

		window := req.Duration
		if window <= 0 {
			window = time.Duration(s.paramInt(tx, "voting_window_hours", 168)) * time.Hour
		}
		quorum := req.Quorum
		if quorum <= 0 {
			quorum = s.paramInt(tx, "minimum_quorum", 20)
		}
		threshold := 50.0
		if superMajority {
			threshold = 66.0
		}

		mMin := s.paramFloat(tx, "multiplier_min", 0.7)
		mMax := s.paramFloat(tx, "multiplier_max", 1.5)

		p = &domain.Poll{
			ID:            uuid.NewString(),
			Title:         req.Title,
			Description:   req.Description,
			Type:          req.Type,
			Status:        domain.PollActive,
			CreatorID:     creatorID,
			StartsAt:      now,
			EndsAt:        now.Add(window),
			Multipliers:   GenerateMultipliers(s.randFloat, mMin, mMax),
			Quorum:        quorum,
			ThresholdPct:  threshold,
			SuperMajority: superMajority,
			ParamName:     req.ParamName,
			ParamOldValue: oldValue,
			ParamNewValue: req.ParamValue,
			CreatedAt:     now,
		}
		if err := tx.InsertPoll(p); err != nil {
			return err
		}
		return tx.InsertStakePool(&domain.StakePool{
			PollID:    p.ID,
			Status:    domain.PoolOpen,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ─── Voting ─────────────────────────────────────────────────────────────────

// CastVoteRequest identifies the poll, the voting persona, and the choice.
type CastVoteRequest struct {
	PollID    string             `json:"poll_id"`
	Mode      domain.IdentityMode `json:"mode"`
	Option    domain.VoteOption  `json:"option"`
	Reasoning string             `json:"reasoning,omitempty"`
}

// CastVote records a vote for one persona. The voter's section, multiplier,
// and final weight are fixed at cast time; the displayed timestamp is
// jittered. Delegators who routed this mode to the voter and have not voted
// themselves receive a mirrored delegated vote in the same transaction.
func (s *Service) CastVote(userID string, req CastVoteRequest) (*domain.Vote, error) {
	if !req.Mode.IsVoting() {
		return nil, domain.ErrInvalidIdentity
	}
	if !req.Option.Valid() {
		return nil, domain.ErrInvalidOption
	}

	var v *domain.Vote
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(req.PollID)
		if err != nil {
			return err
		}
		if err := checkOpen(p, s.now()); err != nil {
			return err
		}

		verified, err := s.identity.IsVerifiedHuman(tx, userID)
		if err != nil {
			return err
		}
		if !verified {
			return domain.ErrNotVerifiedHuman
		}

		existing, err := tx.GetVote(req.PollID, userID, req.Mode)
		if err != nil && !errors.Is(err, domain.ErrVoteNotFound) {
			return err
		}
		if existing != nil && !existing.Delegated {
			return domain.ErrAlreadyVoted
		}

		jitter := time.Duration(s.paramInt(tx, "vote_jitter_seconds", 7200)) * time.Second
		now := s.now()

		if existing != nil {
			// A manual vote overrides the delegated one without spending a
			// change slot.
			v = existing
			if err := tx.AdjustPollTally(p.ID, v.Option, -1, -v.FinalWeight); err != nil {
				return err
			}
			v.Option = req.Option
			v.Reasoning = req.Reasoning
			v.Delegated = false
			v.CastAt = now
			v.DisplayedAt = ObfuscateTime(now, p.EndsAt, s.randFloat, jitter)
			if err := tx.UpdateVote(v); err != nil {
				return err
			}
			return tx.AdjustPollTally(p.ID, v.Option, 1, v.FinalWeight)
		}

		v, err = s.insertVote(tx, p, userID, req.Mode, req.Option, req.Reasoning, false, jitter, now)
		if err != nil {
			return err
		}

		delegators, err := tx.ActiveDelegators(userID, req.Mode)
		if err != nil {
			return err
		}
		for _, d := range delegators {
			prior, err := tx.GetVote(p.ID, d, req.Mode)
			if err != nil && !errors.Is(err, domain.ErrVoteNotFound) {
				return err
			}
			if prior != nil {
				continue
			}
			if _, err := s.insertVote(tx, p, d, req.Mode, req.Option, "", true, jitter, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) insertVote(tx *sqlite.Tx, p *domain.Poll, userID string, mode domain.IdentityMode, option domain.VoteOption, reasoning string, delegated bool, jitter time.Duration, now time.Time) (*domain.Vote, error) {
	section := AssignSection(userID, p.ID, p.StartsAt, mode)
	multiplier := p.Multipliers[section-1]
	v := &domain.Vote{
		PollID:      p.ID,
		UserID:      userID,
		Mode:        mode,
		Option:      option,
		Section:     section,
		Multiplier:  multiplier,
		BaseWeight:  domain.BaseVoteWeight,
		FinalWeight: FinalWeight(domain.BaseVoteWeight, multiplier),
		Reasoning:   reasoning,
		Delegated:   delegated,
		CastAt:      now,
		DisplayedAt: ObfuscateTime(now, p.EndsAt, s.randFloat, jitter),
	}
	if err := tx.InsertVote(v); err != nil {
		return nil, err
	}
	if err := tx.AdjustPollTally(p.ID, option, 1, v.FinalWeight); err != nil {
		return nil, err
	}
	return v, nil
}

// ChangeVote switches an existing vote to a new option. Section, multiplier,
// and weight stay fixed; the change budget is capped.
func (s *Service) ChangeVote(userID string, req CastVoteRequest) (*domain.Vote, error) {
	if !req.Mode.IsVoting() {
		return nil, domain.ErrInvalidIdentity
	}
	if !req.Option.Valid() {
		return nil, domain.ErrInvalidOption
	}

	var v *domain.Vote
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(req.PollID)
		if err != nil {
			return err
		}
		if err := checkOpen(p, s.now()); err != nil {
			return err
		}

		v, err = tx.GetVote(req.PollID, userID, req.Mode)
		if err != nil {
			return err
		}
		maxChanges := s.paramInt(tx, "max_vote_changes", domain.MaxVoteChanges)
		if v.ChangeCount >= maxChanges {
			return domain.ErrVoteChangeLimit
		}

		if err := tx.AdjustPollTally(p.ID, v.Option, -1, -v.FinalWeight); err != nil {
			return err
		}
		now := s.now()
		jitter := time.Duration(s.paramInt(tx, "vote_jitter_seconds", 7200)) * time.Second
		v.Option = req.Option
		v.Reasoning = req.Reasoning
		v.ChangeCount++
		v.Delegated = false
		v.CastAt = now
		v.DisplayedAt = ObfuscateTime(now, p.EndsAt, s.randFloat, jitter)
		if err := tx.UpdateVote(v); err != nil {
			return err
		}
		return tx.AdjustPollTally(p.ID, v.Option, 1, v.FinalWeight)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ─── Closing ────────────────────────────────────────────────────────────────

// ClosePoll tallies an active poll, marks it approved or rejected, closes
// its stake pool for new entries, and schedules the parameter change as an
// executable action when approved.
func (s *Service) ClosePoll(pollID string) (*domain.PollResult, error) {
	var result *domain.PollResult
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(pollID)
		if err != nil {
			return err
		}
		if p.Status != domain.PollActive {
			return domain.ErrPollNotActive
		}

		now := s.now()
		result = tally(p)

		status := domain.PollRejected
		if result.Approved {
			status = domain.PollApproved
		}
		result.Status = status
		if err := tx.UpdatePollStatus(pollID, status, sql.NullInt64{Int64: now.Unix(), Valid: true}); err != nil {
			return err
		}

		pool, err := tx.GetStakePool(pollID)
		if err == nil && pool.Status == domain.PoolOpen {
			if err := tx.UpdatePoolStatus(pollID, domain.PoolClosed, 0, sql.NullInt64{Int64: now.Unix(), Valid: true}); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, domain.ErrPoolNotFound) {
			return err
		}

		if result.Approved && p.ParamName != "" {
			at := domain.ActionStandard
			if p.Type == domain.PollConstitutional {
				at = domain.ActionConstitutional
			}
			a := &domain.Action{
				ID:          uuid.NewString(),
				PollID:      p.ID,
				Type:        at,
				Status:      domain.ActionScheduled,
				ParamName:   p.ParamName,
				OldValue:    p.ParamOldValue,
				NewValue:    p.ParamNewValue,
				ScheduledAt: now,
			}
			if err := tx.InsertAction(a); err != nil {
				return err
			}
			if err := tx.SetPollAction(p.ID, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// tally derives the closing result from a poll's running counters. Approval
// needs quorum plus a weighted yes share strictly above the threshold,
// abstentions excluded from the denominator.
func tally(p *domain.Poll) *domain.PollResult {
	r := &domain.PollResult{
		PollID:     p.ID,
		TotalVotes: p.TotalVotes(),
	}
	total := float64(p.YesWeight + p.NoWeight + p.AbstainWeight)
	if total > 0 {
		r.YesPct = 100 * float64(p.YesWeight) / total
		r.NoPct = 100 * float64(p.NoWeight) / total
		r.AbstainPct = 100 * float64(p.AbstainWeight) / total
	}
	r.QuorumMet = r.TotalVotes >= p.Quorum

	decisive := float64(p.YesWeight + p.NoWeight)
	if r.QuorumMet && decisive > 0 {
		r.Approved = 100*float64(p.YesWeight)/decisive > p.ThresholdPct
	}
	return r
}

// ─── Delegation ─────────────────────────────────────────────────────────────

// Delegate routes one persona's vote to another user. True-self and shadow
// delegations are independent; a persona delegates to at most one user.
func (s *Service) Delegate(delegatorID string, mode domain.IdentityMode, delegateID string) error {
	if !mode.IsVoting() {
		return domain.ErrInvalidIdentity
	}
	if delegatorID == delegateID {
		return fmt.Errorf("%w: self-delegation", domain.ErrInvalidIdentity)
	}
	return s.db.WithTx(func(tx *sqlite.Tx) error {
		verified, err := s.identity.IsVerifiedHuman(tx, delegateID)
		if err != nil {
			return err
		}
		if !verified {
			return domain.ErrNotVerifiedHuman
		}
		return tx.UpsertDelegation(&domain.Delegation{
			DelegatorID: delegatorID,
			Mode:        mode,
			DelegateID:  delegateID,
			Active:      true,
			CreatedAt:   s.now(),
		})
	})
}

// RevokeDelegation deactivates a persona's delegation.
func (s *Service) RevokeDelegation(delegatorID string, mode domain.IdentityMode) error {
	return s.db.WithTx(func(tx *sqlite.Tx) error {
		return tx.RevokeDelegation(delegatorID, mode)
	})
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns one poll by id.
func (s *Service) Get(id string) (*domain.Poll, error) {
	var p *domain.Poll
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		p, err = tx.GetPoll(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns polls, optionally filtered by status.
func (s *Service) List(status domain.PollStatus, limit int) ([]domain.Poll, error) {
	var out []domain.Poll
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		out, err = tx.ListPolls(status, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserVotes returns a user's votes on a poll across both personas. Jittered
// display times only; the true cast times never leave the store layer.
func (s *Service) UserVotes(pollID, userID string) ([]domain.Vote, error) {
	var out []domain.Vote
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		out, err = tx.GetUserVotes(pollID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ─── Live parameters ────────────────────────────────────────────────────────

func checkOpen(p *domain.Poll, now time.Time) error {
	if p.Status != domain.PollActive {
		return domain.ErrPollNotActive
	}
	if !now.Before(p.EndsAt) {
		return domain.ErrVotingClosed
	}
	return nil
}

// paramInt reads a live integer parameter inside the transaction, falling
// back to the built-in default when the registry is unseeded.
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
