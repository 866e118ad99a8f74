package domain

import "time"

// ─── Stake Pool ─────────────────────────────────────────────────────────────

// MinStakeAmount is the default minimum Gratium stake.
const MinStakeAmount = 10

// PoolStatus is the stake pool lifecycle state.
type PoolStatus string

const (
	PoolOpen        PoolStatus = "open"
	PoolClosed      PoolStatus = "closed"      // poll closed, awaiting distribution
	PoolDistributed PoolStatus = "distributed" // rewards paid out
	PoolRefunded    PoolStatus = "refunded"    // no contest — all stakes returned
)

// StakePool aggregates the prediction market attached to one poll.
// Exactly one pool exists per poll, created alongside it.
type StakePool struct {
	PollID string     `json:"poll_id"`
	Status PoolStatus `json:"status"`

	YesTotal int64 `json:"yes_total"`
	NoTotal  int64 `json:"no_total"`
	YesCount int   `json:"yes_count"`
	NoCount  int   `json:"no_count"`

	LargestStake int64 `json:"largest_stake"`

	// Retained is the floor-rounding remainder kept by the platform after
	// proportional distribution. Bounded by the number of winners.
	Retained int64 `json:"retained"`

	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// TotalSize is the combined stake on both sides.
func (p *StakePool) TotalSize() int64 { return p.YesTotal + p.NoTotal }

// AverageStake returns the mean stake size, or 0 for an empty pool.
func (p *StakePool) AverageStake() float64 {
	n := p.YesCount + p.NoCount
	if n == 0 {
		return 0
	}
	return float64(p.TotalSize()) / float64(n)
}

// ─── Stake ──────────────────────────────────────────────────────────────────

// StakeStatus is the lifecycle state of one stake.
type StakeStatus string

const (
	StakeActive   StakeStatus = "active"
	StakeWon      StakeStatus = "won"
	StakeLost     StakeStatus = "lost"
	StakeRefunded StakeStatus = "refunded"
)

// Stake is one identity's position on a poll outcome. Position is yes or
// no, never abstain. One stake per (poll, user, mode); the same identity
// cannot stake twice on the same poll.
type Stake struct {
	ID     string       `json:"id"`
	PollID string       `json:"poll_id"`
	UserID string       `json:"user_id"`
	Mode   IdentityMode `json:"mode"`

	Position VoteOption  `json:"position"`
	Amount   int64       `json:"amount"`
	Status   StakeStatus `json:"status"`
	Reward   int64       `json:"reward"` // set at distribution for winners

	PlacedAt time.Time `json:"placed_at"`
}

// DistributionResult summarizes one reward distribution run.
type DistributionResult struct {
	PollID        string     `json:"poll_id"`
	Winner        VoteOption `json:"winner"`
	Refunded      bool       `json:"refunded"`
	TotalPool     int64      `json:"total_pool"`
	Distributed   int64      `json:"distributed"`
	Retained      int64      `json:"retained"`
	WinnerCount   int        `json:"winner_count"`
	LoserCount    int        `json:"loser_count"`
	RefundedCount int        `json:"refunded_count"`
}
