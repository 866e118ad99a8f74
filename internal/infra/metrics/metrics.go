// Package metrics provides Prometheus metrics for Janus: counters and
// gauges for the poll lifecycle, staking economy, and rollback protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Polls ──────────────────────────────────────────────────────────────────

// PollsCreated tracks created polls by type.
var PollsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "polls_created_total",
	Help:      "Total polls created.",
}, []string{"type"})

// PollsClosed tracks closed polls by outcome.
var PollsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "polls_closed_total",
	Help:      "Total polls closed.",
}, []string{"outcome"})

// VotesCast tracks cast votes by identity mode.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "votes_cast_total",
	Help:      "Total votes cast.",
}, []string{"mode"})

// VotesChanged tracks vote changes.
var VotesChanged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "votes_changed_total",
	Help:      "Total vote changes.",
})

// TokensBurned tracks poll-creation burn.
var TokensBurned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "tokens_burned_total",
	Help:      "Total tokens burned at poll creation.",
})

// ─── Staking ────────────────────────────────────────────────────────────────

// StakesPlaced tracks placed stakes by position.
var StakesPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "stakes_placed_total",
	Help:      "Total stakes placed.",
}, []string{"position"})

// StakeVolume tracks total tokens staked.
var StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "stake_volume_total",
	Help:      "Total tokens placed in stake pools.",
})

// RewardsDistributed tracks tokens paid to winning stakers.
var RewardsDistributed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "rewards_distributed_total",
	Help:      "Total tokens distributed to winning stakers.",
})

// RemainderRetained tracks floor-rounding remainders kept by the platform.
var RemainderRetained = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "remainder_retained_total",
	Help:      "Total rounding remainder retained at distribution.",
})

// PoolsRefunded tracks no-contest pool refunds.
var PoolsRefunded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "pools_refunded_total",
	Help:      "Total stake pools refunded without contest.",
})

// ─── Governance ─────────────────────────────────────────────────────────────

// ActionsProcessed tracks executed actions by result.
var ActionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "actions_processed_total",
	Help:      "Total scheduled actions processed.",
}, []string{"result"})

// RollbacksInitiated tracks emergency polls opened by initiator path.
var RollbacksInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "rollbacks_initiated_total",
	Help:      "Total emergency rollback polls opened.",
}, []string{"initiator"})

// RollbacksExecuted tracks completed rollbacks.
var RollbacksExecuted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "rollbacks_executed_total",
	Help:      "Total parameter rollbacks executed.",
})

// ConstitutionalRejections tracks proposals blocked by the guard.
var ConstitutionalRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "constitutional_rejections_total",
	Help:      "Total proposals rejected for constitutional violations.",
})

// ParametersFrozen tracks parameters currently frozen after rollbacks.
var ParametersFrozen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "janus",
	Name:      "parameters_frozen",
	Help:      "Parameters currently frozen against change.",
})

// ─── Consensus ──────────────────────────────────────────────────────────────

// ConsensusReports tracks computed consensus reports by alignment.
var ConsensusReports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janus",
	Name:      "consensus_reports_total",
	Help:      "Total shadow consensus reports computed.",
}, []string{"alignment"})

// ConsensusGap records the most recent public/private yes-share gap.
var ConsensusGap = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "janus",
	Name:      "consensus_gap_points",
	Help:      "Belief gap of the most recently analyzed poll, in points.",
})
