// Package poll implements the governance poll lifecycle: creation,
// eligibility, vote casting and changing, and closing. It also houses the
// two pure mechanisms every vote passes through — deterministic section
// assignment and timing obfuscation.
package poll

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Section Assignment ─────────────────────────────────────────────────────

// AssignSection places a (voter, poll, identity) triple into one of the 7
// weighting buckets. It hashes userID ∥ pollID ∥ pollStart(RFC3339) ∥ mode
// and reduces the first 8 digest bytes modulo 7.
//
// The poll start timestamp makes the assignment unpredictable before the
// poll exists, which defeats strategic section-shopping; the function
// itself is pure and repeatable.
func AssignSection(userID, pollID string, pollStart time.Time, mode domain.IdentityMode) int {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte(pollID))
	h.Write([]byte(pollStart.UTC().Format(time.RFC3339)))
	h.Write([]byte(mode))

	sum := h.Sum(nil)
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n%domain.SectionCount) + 1
}

// GenerateMultipliers samples the per-poll section multiplier table:
// 7 factors uniform in [min,max], rounded to 2 decimals. Generated once
// at poll creation and immutable thereafter.
func GenerateMultipliers(randFloat func() float64, min, max float64) [domain.SectionCount]float64 {
	var out [domain.SectionCount]float64
	for i := range out {
		v := min + randFloat()*(max-min)
		out[i] = math.Round(v*100) / 100
	}
	return out
}

// FinalWeight computes a vote's weight: floor(base × multiplier).
func FinalWeight(base int64, multiplier float64) int64 {
	return int64(math.Floor(float64(base) * multiplier))
}

// ─── Timing Obfuscation ─────────────────────────────────────────────────────

// ObfuscateTime returns the displayed timestamp for a vote:
// min(actual + U(0, maxJitter), pollEnd).
//
// Votes cast by the same user's two personas within seconds of each other
// would otherwise be timing-correlatable; independent jitter per vote
// breaks that correlation while keeping the displayed time inside the
// poll window.
func ObfuscateTime(actual, pollEnd time.Time, randFloat func() float64, maxJitter time.Duration) time.Time {
	if maxJitter <= 0 {
		return actual
	}
	jitter := time.Duration(randFloat() * float64(maxJitter))
	displayed := actual.Add(jitter)
	if displayed.After(pollEnd) {
		return pollEnd
	}
	return displayed
}
