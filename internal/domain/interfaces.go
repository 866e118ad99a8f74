package domain

import "database/sql"

// ─── Unit of Work ───────────────────────────────────────────────────────────

// Tx is the unit-of-work handle every state-mutating operation runs inside.
// It is satisfied by the sqlite store's transaction wrapper. External
// collaborators (ledger, reputation) take the same Tx so their writes
// commit or abort together with the engine's own.
type Tx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

// TokenType discriminates ledger currencies.
type TokenType string

const (
	// TokenPollCoin is spent to create polls (1% burned, 99% to rewards).
	TokenPollCoin TokenType = "PollCoin"

	// TokenGratium is staked in outcome-prediction pools.
	TokenGratium TokenType = "Gratium"
)

// Platform-internal ledger account ids.
const (
	AccountBurn    = "platform:burn"
	AccountRewards = "platform:rewards"
	AccountRevenue = "platform:revenue"
	AccountFounder = "platform:founder"
)

// ─── External Collaborators ─────────────────────────────────────────────────
// The engine treats these as black boxes beyond the calls listed. The
// in-repo implementations live over the same sqlite store so they share
// the engine's transactional boundary.

// Ledger is the token bookkeeping contract the engine issues lock, credit
// and debit instructions against.
type Ledger interface {
	// CheckBalance reports whether the identity's available (unlocked)
	// balance covers amount.
	CheckBalance(tx Tx, user string, mode IdentityMode, token TokenType, amount int64) (bool, error)

	// Debit removes amount from available balance.
	Debit(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, memo string) error

	// Credit adds amount to available balance.
	Credit(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, memo string) error

	// Lock makes amount unavailable to CheckBalance while it remains part
	// of total holdings. Unlock reverses it.
	Lock(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, referenceID string) error
	Unlock(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, referenceID string) error

	// ForfeitLocked removes a previously locked amount from holdings
	// entirely (stake settlement).
	ForfeitLocked(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, referenceID string) error

	// CreditAsReward adds amount as a reward payout.
	CreditAsReward(tx Tx, user string, mode IdentityMode, token TokenType, amount int64, referenceID string) error
}

// Reputation provides a 0–100 trust score per user, defaulting to 50.
type Reputation interface {
	Score(tx Tx, userID string) (int, error)
}

// Identity answers the external verified-human check.
type Identity interface {
	IsVerifiedHuman(tx Tx, userID string) (bool, error)
}
