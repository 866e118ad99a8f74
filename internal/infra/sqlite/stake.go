package sqlite

import (
	"database/sql"
	"errors"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Stake Pools ────────────────────────────────────────────────────────────

const poolColumns = `poll_id, status, yes_total, no_total, yes_count, no_count,
	largest_stake, retained, created_at, closed_at`

// InsertStakePool creates the empty pool that accompanies a new poll.
func (t *Tx) InsertStakePool(p *domain.StakePool) error {
	_, err := t.Exec(
		`INSERT INTO stake_pools (`+poolColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PollID, string(p.Status), p.YesTotal, p.NoTotal, p.YesCount, p.NoCount,
		p.LargestStake, p.Retained, p.CreatedAt.Unix(), nullableUnix(p.ClosedAt),
	)
	return err
}

// GetStakePool loads a poll's pool.
func (t *Tx) GetStakePool(pollID string) (*domain.StakePool, error) {
	row := t.QueryRow(`SELECT `+poolColumns+` FROM stake_pools WHERE poll_id = ?`, pollID)
	return scanPool(row)
}

// ApplyStakeToPool folds a new stake into the pool aggregates.
func (t *Tx) ApplyStakeToPool(pollID string, position domain.VoteOption, amount int64) error {
	var stmt string
	switch position {
	case domain.OptionYes:
		stmt = `UPDATE stake_pools SET yes_total = yes_total + ?, yes_count = yes_count + 1,
		        largest_stake = MAX(largest_stake, ?) WHERE poll_id = ?`
	case domain.OptionNo:
		stmt = `UPDATE stake_pools SET no_total = no_total + ?, no_count = no_count + 1,
		        largest_stake = MAX(largest_stake, ?) WHERE poll_id = ?`
	default:
		return domain.ErrInvalidPosition
	}
	res, err := t.Exec(stmt, amount, amount, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPoolNotFound)
}

// UpdatePoolStatus transitions the pool, optionally recording the retained
// remainder and close time.
func (t *Tx) UpdatePoolStatus(pollID string, status domain.PoolStatus, retained int64, closedAt sql.NullInt64) error {
	res, err := t.Exec(
		`UPDATE stake_pools SET status = ?, retained = retained + ?, closed_at = COALESCE(?, closed_at)
		 WHERE poll_id = ?`,
		string(status), retained, closedAt, pollID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPoolNotFound)
}

func scanPool(s scanner) (*domain.StakePool, error) {
	var p domain.StakePool
	var status string
	var created int64
	var closed sql.NullInt64

	err := s.Scan(&p.PollID, &status, &p.YesTotal, &p.NoTotal, &p.YesCount, &p.NoCount,
		&p.LargestStake, &p.Retained, &created, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Status = domain.PoolStatus(status)
	p.CreatedAt = fromNullUnix(sql.NullInt64{Int64: created, Valid: true})
	p.ClosedAt = fromNullUnix(closed)
	return &p, nil
}

// ─── Stakes ─────────────────────────────────────────────────────────────────

const stakeColumns = `id, poll_id, user_id, mode, position, amount, status, reward, placed_at`

// InsertStake records a new stake. The (poll, user, mode) unique index
// rejects a second stake from the same identity.
func (t *Tx) InsertStake(s *domain.Stake) error {
	_, err := t.Exec(
		`INSERT INTO stakes (`+stakeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PollID, s.UserID, string(s.Mode), string(s.Position),
		s.Amount, string(s.Status), s.Reward, s.PlacedAt.Unix(),
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrAlreadyStaked
	}
	return err
}

// GetStake loads one identity's stake on a poll.
func (t *Tx) GetStake(pollID, userID string, mode domain.IdentityMode) (*domain.Stake, error) {
	row := t.QueryRow(
		`SELECT `+stakeColumns+` FROM stakes WHERE poll_id = ? AND user_id = ? AND mode = ?`,
		pollID, userID, string(mode),
	)
	return scanStake(row)
}

// ListActiveStakes returns all still-active stakes on a poll.
func (t *Tx) ListActiveStakes(pollID string) ([]domain.Stake, error) {
	rows, err := t.Query(
		`SELECT `+stakeColumns+` FROM stakes WHERE poll_id = ? AND status = 'active' ORDER BY placed_at`,
		pollID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		s, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, *s)
	}
	return stakes, rows.Err()
}

// SettleStake records a stake's outcome and reward.
func (t *Tx) SettleStake(id string, status domain.StakeStatus, reward int64) error {
	res, err := t.Exec(
		`UPDATE stakes SET status = ?, reward = ? WHERE id = ? AND status = 'active'`,
		string(status), reward, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrStakeNotFound)
}

func scanStake(s scanner) (*domain.Stake, error) {
	var st domain.Stake
	var mode, position, status string
	var placed int64

	err := s.Scan(&st.ID, &st.PollID, &st.UserID, &mode, &position,
		&st.Amount, &status, &st.Reward, &placed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStakeNotFound
	}
	if err != nil {
		return nil, err
	}

	st.Mode = domain.IdentityMode(mode)
	st.Position = domain.VoteOption(position)
	st.Status = domain.StakeStatus(status)
	st.PlacedAt = fromNullUnix(sql.NullInt64{Int64: placed, Valid: true})
	return &st, nil
}
