package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Polls ──────────────────────────────────────────────────────────────────

const pollColumns = `id, title, description, type, status, creator_id,
	starts_at, ends_at, multipliers, quorum, threshold_pct, super_majority,
	param_name, param_old, param_new, action_id,
	yes_count, no_count, abstain_count, yes_weight, no_weight, abstain_weight,
	created_at, closed_at`

// InsertPoll persists a newly created poll.
func (t *Tx) InsertPoll(p *domain.Poll) error {
	_, err := t.Exec(
		`INSERT INTO polls (`+pollColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, string(p.Type), string(p.Status), p.CreatorID,
		p.StartsAt.Unix(), p.EndsAt.Unix(), encodeMultipliers(p.Multipliers),
		p.Quorum, p.ThresholdPct, p.SuperMajority,
		p.ParamName, p.ParamOldValue, p.ParamNewValue, p.ActionID,
		p.YesCount, p.NoCount, p.AbstainCount, p.YesWeight, p.NoWeight, p.AbstainWeight,
		p.CreatedAt.Unix(), nullableUnix(p.ClosedAt),
	)
	return err
}

// GetPoll loads a poll by id within the transaction.
func (t *Tx) GetPoll(id string) (*domain.Poll, error) {
	row := t.QueryRow(`SELECT `+pollColumns+` FROM polls WHERE id = ?`, id)
	return scanPoll(row)
}

// ListPolls returns polls, optionally filtered by status, newest first.
func (t *Tx) ListPolls(status domain.PollStatus, limit int) ([]domain.Poll, error) {
	q := `SELECT ` + pollColumns + ` FROM polls`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []domain.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	return polls, rows.Err()
}

// UpdatePollStatus moves a poll to a new lifecycle state.
func (t *Tx) UpdatePollStatus(id string, status domain.PollStatus, closedAt sql.NullInt64) error {
	res, err := t.Exec(
		`UPDATE polls SET status = ?, closed_at = COALESCE(?, closed_at) WHERE id = ?`,
		string(status), closedAt, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPollNotFound)
}

// SetPollAction links a poll to the action it produced.
func (t *Tx) SetPollAction(pollID, actionID string) error {
	res, err := t.Exec(`UPDATE polls SET action_id = ? WHERE id = ?`, actionID, pollID)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPollNotFound)
}

// AdjustPollTally applies a delta to the running tallies for one option.
// Vote cast passes +1/+weight; vote change calls this twice, once negative
// for the old option and once positive for the new, inside one Tx.
func (t *Tx) AdjustPollTally(pollID string, option domain.VoteOption, dCount int, dWeight int64) error {
	var col string
	switch option {
	case domain.OptionYes:
		col = "yes"
	case domain.OptionNo:
		col = "no"
	case domain.OptionAbstain:
		col = "abstain"
	default:
		return domain.ErrInvalidOption
	}

	res, err := t.Exec(
		fmt.Sprintf(`UPDATE polls SET %s_count = %s_count + ?, %s_weight = %s_weight + ? WHERE id = ?`,
			col, col, col, col),
		dCount, dWeight, pollID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPollNotFound)
}

func scanPoll(s scanner) (*domain.Poll, error) {
	var p domain.Poll
	var typ, status, mult string
	var starts, ends, created int64
	var closed sql.NullInt64

	err := s.Scan(&p.ID, &p.Title, &p.Description, &typ, &status, &p.CreatorID,
		&starts, &ends, &mult, &p.Quorum, &p.ThresholdPct, &p.SuperMajority,
		&p.ParamName, &p.ParamOldValue, &p.ParamNewValue, &p.ActionID,
		&p.YesCount, &p.NoCount, &p.AbstainCount, &p.YesWeight, &p.NoWeight, &p.AbstainWeight,
		&created, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Type = domain.PollType(typ)
	p.Status = domain.PollStatus(status)
	p.StartsAt = fromNullUnix(sql.NullInt64{Int64: starts, Valid: true})
	p.EndsAt = fromNullUnix(sql.NullInt64{Int64: ends, Valid: true})
	p.CreatedAt = fromNullUnix(sql.NullInt64{Int64: created, Valid: true})
	p.ClosedAt = fromNullUnix(closed)
	p.Multipliers, err = decodeMultipliers(mult)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ─── Votes ──────────────────────────────────────────────────────────────────

const voteColumns = `poll_id, user_id, mode, option, section, multiplier,
	base_weight, final_weight, reasoning, change_count, delegated, cast_at, displayed_at`

// InsertVote appends a vote row. The (poll, user, mode) primary key makes
// a duplicate cast fail here even under concurrent requests.
func (t *Tx) InsertVote(v *domain.Vote) error {
	_, err := t.Exec(
		`INSERT INTO votes (`+voteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.PollID, v.UserID, string(v.Mode), string(v.Option), v.Section, v.Multiplier,
		v.BaseWeight, v.FinalWeight, v.Reasoning, v.ChangeCount, v.Delegated,
		v.CastAt.Unix(), v.DisplayedAt.Unix(),
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrAlreadyVoted
	}
	return err
}

// GetVote loads one identity's vote on a poll.
func (t *Tx) GetVote(pollID, userID string, mode domain.IdentityMode) (*domain.Vote, error) {
	row := t.QueryRow(
		`SELECT `+voteColumns+` FROM votes WHERE poll_id = ? AND user_id = ? AND mode = ?`,
		pollID, userID, string(mode),
	)
	return scanVote(row)
}

// GetUserVotes returns both personas' votes by one user on a poll.
func (t *Tx) GetUserVotes(pollID, userID string) ([]domain.Vote, error) {
	rows, err := t.Query(
		`SELECT `+voteColumns+` FROM votes WHERE poll_id = ? AND user_id = ? ORDER BY mode`,
		pollID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, *v)
	}
	return votes, rows.Err()
}

// UpdateVote revises option, reasoning and timestamps of an existing vote.
// Section and multiplier are deliberately not in the SET list — they are
// fixed at first cast.
func (t *Tx) UpdateVote(v *domain.Vote) error {
	res, err := t.Exec(
		`UPDATE votes SET option = ?, final_weight = ?, reasoning = ?, change_count = ?,
		        cast_at = ?, displayed_at = ?, delegated = ?
		 WHERE poll_id = ? AND user_id = ? AND mode = ?`,
		string(v.Option), v.FinalWeight, v.Reasoning, v.ChangeCount,
		v.CastAt.Unix(), v.DisplayedAt.Unix(), v.Delegated,
		v.PollID, v.UserID, string(v.Mode),
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrVoteNotFound)
}

// CountVotesByModeOption aggregates a poll's vote counts per (mode, option).
func (t *Tx) CountVotesByModeOption(pollID string) (map[domain.IdentityMode]map[domain.VoteOption]int, error) {
	rows, err := t.Query(
		`SELECT mode, option, COUNT(*) FROM votes WHERE poll_id = ? GROUP BY mode, option`,
		pollID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.IdentityMode]map[domain.VoteOption]int{}
	for rows.Next() {
		var mode, option string
		var n int
		if err := rows.Scan(&mode, &option, &n); err != nil {
			return nil, err
		}
		m := domain.IdentityMode(mode)
		if out[m] == nil {
			out[m] = map[domain.VoteOption]int{}
		}
		out[m][domain.VoteOption(option)] = n
	}
	return out, rows.Err()
}

// CountVotesByReputationBand aggregates vote counts per (mode, option) for
// voters whose reputation falls in [minScore, maxScore).
func (t *Tx) CountVotesByReputationBand(pollID string, minScore, maxScore int) (map[domain.IdentityMode]map[domain.VoteOption]int, error) {
	rows, err := t.Query(
		`SELECT v.mode, v.option, COUNT(*)
		 FROM votes v JOIN users u ON u.id = v.user_id
		 WHERE v.poll_id = ? AND u.reputation >= ? AND u.reputation < ?
		 GROUP BY v.mode, v.option`,
		pollID, minScore, maxScore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.IdentityMode]map[domain.VoteOption]int{}
	for rows.Next() {
		var mode, option string
		var n int
		if err := rows.Scan(&mode, &option, &n); err != nil {
			return nil, err
		}
		m := domain.IdentityMode(mode)
		if out[m] == nil {
			out[m] = map[domain.VoteOption]int{}
		}
		out[m][domain.VoteOption(option)] = n
	}
	return out, rows.Err()
}

func scanVote(s scanner) (*domain.Vote, error) {
	var v domain.Vote
	var mode, option string
	var cast, displayed int64

	err := s.Scan(&v.PollID, &v.UserID, &mode, &option, &v.Section, &v.Multiplier,
		&v.BaseWeight, &v.FinalWeight, &v.Reasoning, &v.ChangeCount, &v.Delegated,
		&cast, &displayed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVoteNotFound
	}
	if err != nil {
		return nil, err
	}

	v.Mode = domain.IdentityMode(mode)
	v.Option = domain.VoteOption(option)
	v.CastAt = fromNullUnix(sql.NullInt64{Int64: cast, Valid: true})
	v.DisplayedAt = fromNullUnix(sql.NullInt64{Int64: displayed, Valid: true})
	return &v, nil
}

// ─── Delegations ────────────────────────────────────────────────────────────

// UpsertDelegation sets or replaces an identity's delegation.
func (t *Tx) UpsertDelegation(d *domain.Delegation) error {
	_, err := t.Exec(
		`INSERT INTO delegations (delegator_id, mode, delegate_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(delegator_id, mode) DO UPDATE SET
			delegate_id=excluded.delegate_id, active=excluded.active, created_at=excluded.created_at`,
		d.DelegatorID, string(d.Mode), d.DelegateID, d.Active, d.CreatedAt.Unix(),
	)
	return err
}

// RevokeDelegation deactivates an identity's delegation.
func (t *Tx) RevokeDelegation(delegatorID string, mode domain.IdentityMode) error {
	res, err := t.Exec(
		`UPDATE delegations SET active = 0 WHERE delegator_id = ? AND mode = ? AND active = 1`,
		delegatorID, string(mode),
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrDelegationNotFound)
}

// ActiveDelegators returns the delegators currently routing the given mode
// to the delegate.
func (t *Tx) ActiveDelegators(delegateID string, mode domain.IdentityMode) ([]string, error) {
	rows, err := t.Query(
		`SELECT delegator_id FROM delegations WHERE delegate_id = ? AND mode = ? AND active = 1`,
		delegateID, string(mode),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Shared helpers ─────────────────────────────────────────────────────────

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
