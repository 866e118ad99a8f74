// Package consensus computes the Shadow Consensus reports: the aggregate
// gap between what the community says publicly and what the same people
// vote privately, never attributable to any individual.
package consensus

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// waldZ is the two-sided 95% normal quantile used for the proportion
// confidence interval.
const waldZ = 1.96

// trendMargin is the yes-share lead, in percentage points, one persona
// population needs before the report calls a direction.
const trendMargin = 3.0

// Analyzer produces per-poll consensus and demographic reports.
type Analyzer struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewAnalyzer returns an analyzer over the given store.
func NewAnalyzer(db *sqlite.DB) *Analyzer {
	return &Analyzer{db: db, now: time.Now}
}

// Analyze computes and stores the consensus report for a closed poll.
// Recomputing overwrites the prior report, so the operation is idempotent.
func (a *Analyzer) Analyze(pollID string) (*domain.ConsensusReport, error) {
	var report *domain.ConsensusReport
	err := a.db.WithTx(func(tx *sqlite.Tx) error {
		p, err := tx.GetPoll(pollID)
		if err != nil {
			return err
		}
		if p.Status == domain.PollActive || p.Status == domain.PollPending {
			return domain.ErrPollNotClosed
		}

		counts, err := tx.CountVotesByModeOption(pollID)
		if err != nil {
			return err
		}
		report = buildReport(pollID, counts, a.now())
		return tx.UpsertConsensusReport(report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Report returns the stored consensus report for a poll.
func (a *Analyzer) Report(pollID string) (*domain.ConsensusReport, error) {
	var r *domain.ConsensusReport
	err := a.db.Read(func(tx *sqlite.Tx) error {
		var err error
		r, err = tx.GetConsensusReport(pollID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// reputationBands are the fixed score buckets of the demographic breakdown.
var reputationBands = []struct {
	label    string
	min, max int
}{
	{"0-40", 0, 40},
	{"40-70", 40, 70},
	{"70-100", 70, 100},
}

// Demographics repeats the gap calculation per reputation band. The report
// is computed on demand and not persisted.
func (a *Analyzer) Demographics(pollID string) (*domain.DemographicReport, error) {
	report := &domain.DemographicReport{PollID: pollID, ComputedAt: a.now()}
	err := a.db.Read(func(tx *sqlite.Tx) error {
		if _, err := tx.GetPoll(pollID); err != nil {
			return err
		}
		for _, b := range reputationBands {
			// Bands are half-open; stretch the top one so a perfect 100
			// still lands in it.
			qmax := b.max
			if qmax == 100 {
				qmax = 101
			}
			counts, err := tx.CountVotesByReputationBand(pollID, b.min, qmax)
			if err != nil {
				return err
			}
			ts := newTally(counts[domain.ModeTrueSelf])
			sh := newTally(counts[domain.ModeShadow])
			report.Bands = append(report.Bands, domain.DemographicBand{
				Label:    b.label,
				MinScore: b.min,
				MaxScore: b.max,
				TrueSelf: ts,
				Shadow:   sh,
				Gap:      math.Abs(ts.YesPct - sh.YesPct),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ─── Report construction ────────────────────────────────────────────────────

func buildReport(pollID string, counts map[domain.IdentityMode]map[domain.VoteOption]int, now time.Time) *domain.ConsensusReport {
	r := &domain.ConsensusReport{
		PollID:     pollID,
		TrueSelf:   newTally(counts[domain.ModeTrueSelf]),
		Shadow:     newTally(counts[domain.ModeShadow]),
		ComputedAt: now,
	}
	r.Gap = math.Abs(r.TrueSelf.YesPct - r.Shadow.YesPct)
	r.AverageCI = stat.Mean([]float64{r.TrueSelf.CI, r.Shadow.CI}, nil)
	r.Alignment = classify(r.Gap, r.AverageCI)
	r.Trend = trend(r.TrueSelf.YesPct, r.Shadow.YesPct)
	return r
}

// newTally folds raw option counts into a ModeTally with the yes share and
// its 95% Wald half-width. An empty population tallies to zero with a zero
// interval rather than NaN.
func newTally(byOption map[domain.VoteOption]int) domain.ModeTally {
	t := domain.ModeTally{
		Yes:     byOption[domain.OptionYes],
		No:      byOption[domain.OptionNo],
		Abstain: byOption[domain.OptionAbstain],
	}
	n := t.Total()
	if n == 0 {
		return t
	}
	p := float64(t.Yes) / float64(n)
	t.YesPct = 100 * p
	t.CI = 100 * waldZ * math.Sqrt(p*(1-p)/float64(n))
	return t
}

// classify maps a yes-share gap to an alignment bucket. A gap inside the
// pooled confidence interval is statistical noise regardless of size.
func classify(gap, avgCI float64) domain.Alignment {
	switch {
	case gap < avgCI:
		return domain.AlignmentAligned
	case gap < 10:
		return domain.AlignmentSlight
	case gap < 20:
		return domain.AlignmentModerate
	default:
		return domain.AlignmentSignificant
	}
}

func trend(trueYesPct, shadowYesPct float64) domain.Trend {
	switch {
	case shadowYesPct-trueYesPct > trendMargin:
		return domain.TrendShadowMoreConfident
	case trueYesPct-shadowYesPct > trendMargin:
		return domain.TrendPublicMoreConfident
	default:
		return domain.TrendStable
	}
}
