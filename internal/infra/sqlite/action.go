package sqlite

import (
	"database/sql"
	"errors"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Actions ────────────────────────────────────────────────────────────────

const actionColumns = `id, poll_id, type, status, param_name, old_value, new_value,
	scheduled_at, executed_at, rollback_deadline, rolled_back_at, rollback_by, error`

// InsertAction persists a scheduled action.
func (t *Tx) InsertAction(a *domain.Action) error {
	_, err := t.Exec(
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PollID, string(a.Type), string(a.Status),
		a.ParamName, a.OldValue, a.NewValue,
		a.ScheduledAt.Unix(), nullableUnix(a.ExecutedAt), nullableUnix(a.RollbackDeadline),
		nullableUnix(a.RolledBackAt), a.RollbackBy, a.Error,
	)
	return err
}

// GetAction loads an action by id.
func (t *Tx) GetAction(id string) (*domain.Action, error) {
	row := t.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanAction(row)
}

// DueActions returns scheduled actions whose time has come. The query is
// idempotent: re-running the sweep never picks up an action twice because
// execution moves it out of the scheduled state.
func (t *Tx) DueActions(now int64) ([]domain.Action, error) {
	rows, err := t.Query(
		`SELECT `+actionColumns+` FROM actions
		 WHERE status = 'scheduled' AND scheduled_at <= ? ORDER BY scheduled_at`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// MarkActionExecuting claims a scheduled action for execution.
func (t *Tx) MarkActionExecuting(id string) error {
	res, err := t.Exec(
		`UPDATE actions SET status = 'executing' WHERE id = ? AND status = 'scheduled'`, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActionNotDue)
}

// MarkActionCompleted finishes execution, recording the rollback deadline.
func (t *Tx) MarkActionCompleted(id string, executedAt, rollbackDeadline int64) error {
	res, err := t.Exec(
		`UPDATE actions SET status = 'completed', executed_at = ?, rollback_deadline = ?
		 WHERE id = ? AND status = 'executing'`,
		executedAt, rollbackDeadline, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActionNotFound)
}

// MarkActionFailed records a terminal executor failure. The error message
// on the row is the designed outcome of this path, not an afterthought.
func (t *Tx) MarkActionFailed(id, msg string) error {
	res, err := t.Exec(
		`UPDATE actions SET status = 'failed', error = ? WHERE id = ? AND status = 'executing'`,
		msg, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActionNotFound)
}

// MarkActionRolledBack transitions a completed action to rolled_back with
// initiator provenance.
func (t *Tx) MarkActionRolledBack(id, provenance string, rolledBackAt int64) error {
	res, err := t.Exec(
		`UPDATE actions SET status = 'rolled_back', rolled_back_at = ?, rollback_by = ?
		 WHERE id = ? AND status = 'completed'`,
		rolledBackAt, provenance, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrActionNotCompleted)
}

func scanAction(s scanner) (*domain.Action, error) {
	var a domain.Action
	var typ, status string
	var scheduled int64
	var executed, deadline, rolledBack sql.NullInt64

	err := s.Scan(&a.ID, &a.PollID, &typ, &status, &a.ParamName, &a.OldValue, &a.NewValue,
		&scheduled, &executed, &deadline, &rolledBack, &a.RollbackBy, &a.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Type = domain.ActionType(typ)
	a.Status = domain.ActionStatus(status)
	a.ScheduledAt = fromNullUnix(sql.NullInt64{Int64: scheduled, Valid: true})
	a.ExecutedAt = fromNullUnix(executed)
	a.RollbackDeadline = fromNullUnix(deadline)
	a.RolledBackAt = fromNullUnix(rolledBack)
	return &a, nil
}

// ─── Petitions ──────────────────────────────────────────────────────────────

// InsertPetition opens a rollback petition.
func (t *Tx) InsertPetition(p *domain.Petition) error {
	_, err := t.Exec(
		`INSERT INTO petitions (id, action_id, status, poll_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.ActionID, string(p.Status), p.PollID, p.CreatedAt.Unix(),
	)
	return err
}

// GetPetition loads a petition with its live signature count.
func (t *Tx) GetPetition(id string) (*domain.Petition, error) {
	var p domain.Petition
	var status string
	var created int64

	err := t.QueryRow(
		`SELECT p.id, p.action_id, p.status, p.poll_id, p.created_at,
		        (SELECT COUNT(*) FROM petition_signatures s WHERE s.petition_id = p.id)
		 FROM petitions p WHERE p.id = ?`, id,
	).Scan(&p.ID, &p.ActionID, &status, &p.PollID, &created, &p.Signers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPetitionNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Status = domain.PetitionStatus(status)
	p.CreatedAt = fromNullUnix(sql.NullInt64{Int64: created, Valid: true})
	return &p, nil
}

// OpenPetitionForAction returns the open petition targeting an action, if any.
func (t *Tx) OpenPetitionForAction(actionID string) (*domain.Petition, error) {
	var id string
	err := t.QueryRow(
		`SELECT id FROM petitions WHERE action_id = ? AND status = 'open'`, actionID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPetitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return t.GetPetition(id)
}

// InsertSignature records a distinct signature. Duplicates are rejected by
// the primary key.
func (t *Tx) InsertSignature(petitionID, userID string, signedAt int64) error {
	_, err := t.Exec(
		`INSERT INTO petition_signatures (petition_id, user_id, signed_at) VALUES (?, ?, ?)`,
		petitionID, userID, signedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateSignature
	}
	return err
}

// EscalatePetition marks a petition escalated and links the rollback poll
// it produced.
func (t *Tx) EscalatePetition(id, pollID string) error {
	res, err := t.Exec(
		`UPDATE petitions SET status = 'escalated', poll_id = ? WHERE id = ? AND status = 'open'`,
		pollID, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrPetitionClosed)
}

// ─── Founder state ──────────────────────────────────────────────────────────

// SeedFounderState initializes the founder token bucket once.
func (t *Tx) SeedFounderState(tokens int, launchedAt int64) error {
	_, err := t.Exec(
		`INSERT INTO founder_state (id, tokens_remaining, launched_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		tokens, launchedAt,
	)
	return err
}

// FounderState returns the remaining tokens and platform launch time.
func (t *Tx) FounderState() (tokens int, launchedAt int64, err error) {
	err = t.QueryRow(`SELECT tokens_remaining, launched_at FROM founder_state WHERE id = 1`).
		Scan(&tokens, &launchedAt)
	return
}

// ConsumeFounderToken decrements the bucket, failing when empty.
func (t *Tx) ConsumeFounderToken() error {
	res, err := t.Exec(
		`UPDATE founder_state SET tokens_remaining = tokens_remaining - 1
		 WHERE id = 1 AND tokens_remaining > 0`,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrFounderTokensExhausted)
}

// ─── Consensus reports ──────────────────────────────────────────────────────

// UpsertConsensusReport writes the point-in-time summary; last write wins.
func (t *Tx) UpsertConsensusReport(r *domain.ConsensusReport) error {
	_, err := t.Exec(
		`INSERT INTO consensus_reports (poll_id, true_yes, true_no, true_abstain,
			shadow_yes, shadow_no, shadow_abstain, true_pct, shadow_pct,
			true_ci, shadow_ci, gap, average_ci, alignment, trend, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(poll_id) DO UPDATE SET
			true_yes=excluded.true_yes, true_no=excluded.true_no, true_abstain=excluded.true_abstain,
			shadow_yes=excluded.shadow_yes, shadow_no=excluded.shadow_no, shadow_abstain=excluded.shadow_abstain,
			true_pct=excluded.true_pct, shadow_pct=excluded.shadow_pct,
			true_ci=excluded.true_ci, shadow_ci=excluded.shadow_ci,
			gap=excluded.gap, average_ci=excluded.average_ci,
			alignment=excluded.alignment, trend=excluded.trend, computed_at=excluded.computed_at`,
		r.PollID, r.TrueSelf.Yes, r.TrueSelf.No, r.TrueSelf.Abstain,
		r.Shadow.Yes, r.Shadow.No, r.Shadow.Abstain,
		r.TrueSelf.YesPct, r.Shadow.YesPct, r.TrueSelf.CI, r.Shadow.CI,
		r.Gap, r.AverageCI, string(r.Alignment), string(r.Trend), r.ComputedAt.Unix(),
	)
	return err
}

// GetConsensusReport loads a poll's stored consensus report.
func (t *Tx) GetConsensusReport(pollID string) (*domain.ConsensusReport, error) {
	var r domain.ConsensusReport
	var alignment, trend string
	var computed int64

	err := t.QueryRow(
		`SELECT poll_id, true_yes, true_no, true_abstain, shadow_yes, shadow_no, shadow_abstain,
		        true_pct, shadow_pct, true_ci, shadow_ci, gap, average_ci, alignment, trend, computed_at
		 FROM consensus_reports WHERE poll_id = ?`, pollID,
	).Scan(&r.PollID, &r.TrueSelf.Yes, &r.TrueSelf.No, &r.TrueSelf.Abstain,
		&r.Shadow.Yes, &r.Shadow.No, &r.Shadow.Abstain,
		&r.TrueSelf.YesPct, &r.Shadow.YesPct, &r.TrueSelf.CI, &r.Shadow.CI,
		&r.Gap, &r.AverageCI, &alignment, &trend, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Alignment = domain.Alignment(alignment)
	r.Trend = domain.Trend(trend)
	r.ComputedAt = fromNullUnix(sql.NullInt64{Int64: computed, Valid: true})
	return &r, nil
}

// ─── Users ──────────────────────────────────────────────────────────────────

// UpsertUser records a user's reputation and verification flags.
func (t *Tx) UpsertUser(id string, reputation int, verified bool, createdAt int64) error {
	_, err := t.Exec(
		`INSERT INTO users (id, reputation, verified, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET reputation=excluded.reputation, verified=excluded.verified`,
		id, reputation, verified, createdAt,
	)
	return err
}

// MarkUserDeleted flags an account as deleted at the given time.
func (t *Tx) MarkUserDeleted(id string, deletedAt int64) error {
	res, err := t.Exec(
		`UPDATE users SET deleted = 1, deleted_at = ? WHERE id = ? AND deleted = 0`,
		deletedAt, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, errors.New("user not found or already deleted"))
}

// DeletionStats returns total users and how many deleted since the cutoff.
// Feeds the automatic rollback trigger heuristic.
func (t *Tx) DeletionStats(since int64) (total, deletedSince int, err error) {
	if err = t.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return
	}
	err = t.QueryRow(
		`SELECT COUNT(*) FROM users WHERE deleted = 1 AND deleted_at >= ?`, since,
	).Scan(&deletedSince)
	return
}
