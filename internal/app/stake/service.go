// Package stake implements outcome staking: locking Gratium behind a poll
// position while voting is open and distributing the pool proportionally to
// the winning side when the poll resolves.
package stake

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Stake Service
// ═══════════════════════════════════════════════════════════════════════════

// Service manages stake pools and their settlement. Stakes lock tokens in
// the staker's ledger account at creation; settlement forfeits the lock and
// pays winners from the combined pool.
type Service struct {
	db     *sqlite.DB
	ledger domain.Ledger
	now    func() time.Time
}

// NewService wires a stake service against the store and ledger.
func NewService(db *sqlite.DB, ledger domain.Ledger) *Service {
	return &Service{db: db, ledger: ledger, now: time.Now}
}

// CreateStakeRequest places tokens behind one poll outcome.
type CreateStakeRequest struct {
	PollID   string              `json:"poll_id"`
	Mode     domain.IdentityMode `json:"mode"`
	Position domain.VoteOption   `json:"position"`
	Amount   int64               `json:"amount"`
}

// CreateStake locks the stake amount and records the position. The two
// personas of one user stake independently and may take opposite sides.
func (s *Service) CreateStake(userID string, req CreateStakeRequest) (*domain.Stake, error) {
	if !req.Mode.IsVoting() {
		return nil, domain.ErrInvalidIdentity
	}
	if req.Position != domain.OptionYes && req.Position != domain.OptionNo {
		return nil, domain.ErrInvalidPosition
	}

	var st *domain.Stake
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		min := int64(domain.MinStakeAmount)
		if p, err := tx.GetParameter("minimum_stake"); err == nil {
			if v, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
				min = v
			}
		}
		if req.Amount < min {
			return fmt.Errorf("%w: %d < %d", domain.ErrStakeBelowMinimum, req.Amount, min)
		}

		p, err := tx.GetPoll(req.PollID)
		if err != nil {
			return err
		}
		if !p.VotingOpen(s.now()) {
			return domain.ErrPoolNotOpen
		}
		pool, err := tx.GetStakePool(req.PollID)
		if err != nil {
			return err
		}
		if pool.Status != domain.PoolOpen {
			return domain.ErrPoolNotOpen
		}

		if err := s.ledger.Lock(tx, userID, req.Mode, domain.TokenGratium, req.Amount, req.PollID); err != nil {
			return err
		}

		st = &domain.Stake{
			ID:       uuid.NewString(),
			PollID:   req.PollID,
			UserID:   userID,
			Mode:     req.Mode,
			Position: req.Position,
			Amount:   req.Amount,
			Status:   domain.StakeActive,
			PlacedAt: s.now(),
		}
		if err := tx.InsertStake(st); err != nil {
			return err
		}
		return tx.ApplyStakeToPool(req.PollID, req.Position, req.Amount)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// PotentialReward previews the payout a hypothetical stake would earn if
// its side won against the pool as it stands now.
func (s *Service) PotentialReward(pollID string, position domain.VoteOption, amount int64) (int64, error) {
	if position != domain.OptionYes && position != domain.OptionNo {
		return 0, domain.ErrInvalidPosition
	}
	var reward int64
	err := s.db.Read(func(tx *sqlite.Tx) error {
		pool, err := tx.GetStakePool(pollID)
		if err != nil {
			return err
		}
		winning := pool.YesTotal
		if position == domain.OptionNo {
			winning = pool.NoTotal
		}
		reward = payout(amount, winning+amount, pool.TotalSize()+amount)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reward, nil
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// Distribute settles a closed pool against the poll outcome. Winners split
// the combined pool proportionally to their stake with floor rounding; the
// remainder goes to platform revenue. No-contest pools (abstain outcome,
// quorum failure, or an empty side) refund every stake instead.
func (s *Service) Distribute(pollID string) (*domain.DistributionResult, error) {
	var result *domain.DistributionResult
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(pollID)
		if err != nil {
			return err
		}
		if p.Status != domain.PollApproved && p.Status != domain.PollRejected && p.Status != domain.PollExecuted {
			return domain.ErrPollNotClosed
		}
		pool, err := tx.GetStakePool(pollID)
		if err != nil {
			return err
		}
		switch pool.Status {
		case domain.PoolClosed:
		case domain.PoolDistributed, domain.PoolRefunded:
			return domain.ErrPoolAlreadySettled
		default:
			return domain.ErrPoolNotOpen
		}

		stakes, err := tx.ListActiveStakes(pollID)
		if err != nil {
			return err
		}

		winner := domain.OptionNo
		if p.Status == domain.PollApproved {
			winner = domain.OptionYes
		}
		contested := p.TotalVotes() >= p.Quorum &&
			pool.YesTotal > 0 && pool.NoTotal > 0

		result = &domain.DistributionResult{
			PollID:    pollID,
			Winner:    winner,
			TotalPool: pool.TotalSize(),
		}

		if !contested {
			result.Refunded = true
			for _, st := range stakes {
				if err := s.ledger.Unlock(tx, st.UserID, st.Mode, domain.TokenGratium, st.Amount, pollID); err != nil {
					return err
				}
				if err := tx.SettleStake(st.ID, domain.StakeRefunded, 0); err != nil {
					return err
				}
				result.RefundedCount++
			}
			return tx.UpdatePoolStatus(pollID, domain.PoolRefunded, 0, sql.NullInt64{})
		}

		winning := pool.YesTotal
		if winner == domain.OptionNo {
			winning = pool.NoTotal
		}

		for _, st := range stakes {
			if err := s.ledger.ForfeitLocked(tx, st.UserID, st.Mode, domain.TokenGratium, st.Amount, pollID); err != nil {
				return err
			}
			if st.Position != winner {
				if err := tx.SettleStake(st.ID, domain.StakeLost, 0); err != nil {
					return err
				}
				result.LoserCount++
				continue
			}
			reward := payout(st.Amount, winning, pool.TotalSize())
			if err := s.ledger.CreditAsReward(tx, st.UserID, st.Mode, domain.TokenGratium, reward, pollID); err != nil {
				return err
			}
			if err := tx.SettleStake(st.ID, domain.StakeWon, reward); err != nil {
				return err
			}
			result.WinnerCount++
			result.Distributed += reward
		}

		result.Retained = result.TotalPool - result.Distributed
		if result.Retained > 0 {
			if err := s.ledger.Credit(tx, domain.AccountRevenue, domain.ModeSystem, domain.TokenGratium, result.Retained, "distribution remainder"); err != nil {
				return err
			}
		}
		return tx.UpdatePoolStatus(pollID, domain.PoolDistributed, result.Retained, sql.NullInt64{})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// payout is the proportional winner share: floor(stake × pool / winning).
// Summed over all winners it never exceeds the pool, and the shortfall is
// strictly less than the number of winners.
func payout(stake, winning, pool int64) int64 {
	if winning <= 0 {
		return 0
	}
	return stake * pool / winning
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Pool returns the running pool for a poll.
func (s *Service) Pool(pollID string) (*domain.StakePool, error) {
	var pool *domain.StakePool
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		pool, err = tx.GetStakePool(pollID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Get returns one identity's stake on a poll.
func (s *Service) Get(pollID, userID string, mode domain.IdentityMode) (*domain.Stake, error) {
	var st *domain.Stake
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		st, err = tx.GetStake(pollID, userID, mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
