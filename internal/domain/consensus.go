package domain

import "time"

// ─── Shadow Consensus ───────────────────────────────────────────────────────

// Alignment classifies the public/private belief gap on a closed poll.
type Alignment string

const (
	AlignmentAligned     Alignment = "aligned"     // gap within statistical noise
	AlignmentSlight      Alignment = "slight"      // gap < 10 points
	AlignmentModerate    Alignment = "moderate"    // gap < 20 points
	AlignmentSignificant Alignment = "significant" // gap ≥ 20 points
)

// Trend describes which persona population leans further toward yes.
type Trend string

const (
	TrendStable              Trend = "stable"
	TrendShadowMoreConfident Trend = "shadow_more_confident"
	TrendPublicMoreConfident Trend = "public_more_confident"
)

// ModeTally is the per-persona vote distribution for one poll.
type ModeTally struct {
	Yes     int     `json:"yes"`
	No      int     `json:"no"`
	Abstain int     `json:"abstain"`
	YesPct  float64 `json:"yes_pct"`
	CI      float64 `json:"ci"` // 95% Wald half-width, percentage points
}

// Total is the vote count across all options.
func (t ModeTally) Total() int { return t.Yes + t.No + t.Abstain }

// ConsensusReport is the point-in-time belief-gap summary for a closed
// poll. Reports are upserted, not appended — recomputing is idempotent and
// the last write wins.
type ConsensusReport struct {
	PollID string `json:"poll_id"`

	TrueSelf ModeTally `json:"true_self"`
	Shadow   ModeTally `json:"shadow"`

	Gap       float64   `json:"gap"`        // |trueYes% − shadowYes%|
	AverageCI float64   `json:"average_ci"` // mean of the two Wald CIs
	Alignment Alignment `json:"alignment"`
	Trend     Trend     `json:"trend"`

	ComputedAt time.Time `json:"computed_at"`
}

// DemographicBand is one reputation-score bucket in the demographic
// breakdown variant.
type DemographicBand struct {
	Label    string    `json:"label"` // "0-40", "40-70", "70-100"
	MinScore int       `json:"min_score"`
	MaxScore int       `json:"max_score"`
	TrueSelf ModeTally `json:"true_self"`
	Shadow   ModeTally `json:"shadow"`
	Gap      float64   `json:"gap"`
}

// DemographicReport repeats the gap calculation per reputation band.
type DemographicReport struct {
	PollID     string            `json:"poll_id"`
	Bands      []DemographicBand `json:"bands"`
	ComputedAt time.Time         `json:"computed_at"`
}
