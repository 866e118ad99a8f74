// Package ledger implements the token bookkeeping contract over the shared
// sqlite store. Every operation takes the caller's transaction handle, so
// a ledger failure aborts the enclosing governance writes — no partial
// state, no two-phase commit.
//
// Accounts are keyed (user, identity, token): the two personas of one
// participant hold fully independent balances. Each movement also appends
// a journal entry.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/janus-network/janus/internal/domain"
)

// Service is the sqlite-backed ledger. It satisfies domain.Ledger.
type Service struct {
	now func() time.Time
}

// NewService creates a ledger service.
func NewService() *Service {
	return &Service{now: time.Now}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Balances returns total holdings and the locked portion.
func (s *Service) Balances(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType) (balance, locked int64, err error) {
	err = tx.QueryRow(
		`SELECT balance, locked FROM ledger_accounts WHERE user_id = ? AND mode = ? AND token = ?`,
		user, string(mode), string(token),
	).Scan(&balance, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		err = fmt.Errorf("%w: read account: %v", domain.ErrLedgerFailure, err)
	}
	return
}

// CheckBalance reports whether the available (unlocked) balance covers
// amount. Locked funds remain part of holdings but are invisible here.
func (s *Service) CheckBalance(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64) (bool, error) {
	balance, locked, err := s.Balances(tx, user, mode, token)
	if err != nil {
		return false, err
	}
	return balance-locked >= amount, nil
}

// ─── Movements ──────────────────────────────────────────────────────────────

// Debit removes amount from available balance.
func (s *Service) Debit(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, memo string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	ok, err := s.CheckBalance(tx, user, mode, token, amount)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientBalance
	}

	if err := s.adjust(tx, user, mode, token, -amount, 0); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "debit", amount, "", memo)
}

// Credit adds amount to available balance.
func (s *Service) Credit(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, memo string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if err := s.adjust(tx, user, mode, token, amount, 0); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "credit", amount, "", memo)
}

// Lock reserves amount: still held, no longer available.
func (s *Service) Lock(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, referenceID string) error {
	if amount <= 0 {
		return fmt.Errorf("lock amount must be positive, got %d", amount)
	}
	ok, err := s.CheckBalance(tx, user, mode, token, amount)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientBalance
	}

	if err := s.adjust(tx, user, mode, token, 0, amount); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "lock", amount, referenceID, "")
}

// Unlock releases a reservation back to available balance.
func (s *Service) Unlock(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, referenceID string) error {
	if err := s.adjustLocked(tx, user, mode, token, -amount); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "unlock", amount, referenceID, "")
}

// ForfeitLocked removes a locked amount from holdings entirely — stake
// settlement routes losing (and pooled winning) stakes through here.
func (s *Service) ForfeitLocked(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, referenceID string) error {
	if err := s.adjust(tx, user, mode, token, -amount, -amount); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "forfeit", amount, referenceID, "")
}

// CreditAsReward adds a reward payout to available balance.
func (s *Service) CreditAsReward(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, amount int64, referenceID string) error {
	if amount <= 0 {
		return fmt.Errorf("reward amount must be positive, got %d", amount)
	}
	if err := s.adjust(tx, user, mode, token, amount, 0); err != nil {
		return err
	}
	return s.journal(tx, user, mode, token, "reward", amount, referenceID, "")
}

// ─── Internals ──────────────────────────────────────────────────────────────

// adjust applies balance and locked deltas, creating the account row on
// first touch. Negative results are rejected as a ledger failure: callers
// are expected to have checked availability first.
func (s *Service) adjust(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, dBalance, dLocked int64) error {
	if _, err := tx.Exec(
		`INSERT INTO ledger_accounts (user_id, mode, token, balance, locked)
		 VALUES (?, ?, ?, 0, 0) ON CONFLICT(user_id, mode, token) DO NOTHING`,
		user, string(mode), string(token),
	); err != nil {
		return fmt.Errorf("%w: ensure account: %v", domain.ErrLedgerFailure, err)
	}

	res, err := tx.Exec(
		`UPDATE ledger_accounts SET balance = balance + ?, locked = locked + ?
		 WHERE user_id = ? AND mode = ? AND token = ?
		   AND balance + ? >= 0 AND locked + ? >= 0 AND balance + ? >= locked + ?`,
		dBalance, dLocked, user, string(mode), string(token),
		dBalance, dLocked, dBalance, dLocked,
	)
	if err != nil {
		return fmt.Errorf("%w: adjust account: %v", domain.ErrLedgerFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: adjust account: %v", domain.ErrLedgerFailure, err)
	}
	if n == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (s *Service) adjustLocked(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, dLocked int64) error {
	return s.adjust(tx, user, mode, token, 0, dLocked)
}

func (s *Service) journal(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, entryType string, amount int64, reference, memo string) error {
	_, err := tx.Exec(
		`INSERT INTO ledger_entries (timestamp, user_id, mode, token, entry_type, amount, reference, memo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.now().Unix(), user, string(mode), string(token), entryType, amount, reference, memo,
	)
	if err != nil {
		return fmt.Errorf("%w: journal: %v", domain.ErrLedgerFailure, err)
	}
	return nil
}

// Entries returns the most recent journal entries for an account.
func (s *Service) Entries(tx domain.Tx, user string, mode domain.IdentityMode, token domain.TokenType, limit int) ([]Entry, error) {
	rows, err := tx.Query(
		`SELECT timestamp, entry_type, amount, reference, memo FROM ledger_entries
		 WHERE user_id = ? AND mode = ? AND token = ? ORDER BY id DESC LIMIT ?`,
		user, string(mode), string(token), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: entries: %v", domain.ErrLedgerFailure, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&ts, &e.Type, &e.Amount, &e.Reference, &e.Memo); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	Memo      string    `json:"memo,omitempty"`
}
