package params

import (
	"fmt"
	"strings"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Constitutional Guard ───────────────────────────────────────────────────
// A small fixed set of unamendable articles, each encoding a pattern-based
// check over (parameter name, proposed value, free-text description). The
// guard runs before a parameter-type poll is created and takes precedence
// over ordinary bounds validation. Violations are always fatal.

// Guard validates proposed changes against the constitution.
type Guard struct {
	articles []article
}

// article pairs the public record with its machine check.
type article struct {
	domain.ConstitutionalArticle
	check func(paramName, value, description string) bool // true = violation
}

// NewGuard creates the guard with the platform's fixed articles.
func NewGuard() *Guard {
	return &Guard{articles: buildArticles()}
}

// Articles returns the public article records for seeding and listing.
func Articles() []domain.ConstitutionalArticle {
	g := NewGuard()
	out := make([]domain.ConstitutionalArticle, len(g.articles))
	for i, a := range g.articles {
		out[i] = a.ConstitutionalArticle
	}
	return out
}

// Check validates a proposed parameter change (or a general poll's text)
// against every article. The first violated article is reported.
func (g *Guard) Check(paramName, value, description string) error {
	name := strings.ToLower(paramName)
	val := strings.ToLower(strings.TrimSpace(value))
	desc := strings.ToLower(description)

	for _, a := range g.articles {
		if a.check(name, val, desc) {
			return fmt.Errorf("%w: article %d (%s)", domain.ErrConstitutionalViolation, a.Number, a.Title)
		}
	}
	return nil
}

func buildArticles() []article {
	return []article{
		{
			ConstitutionalArticle: domain.ConstitutionalArticle{
				Number: 1,
				Title:  "Dual identity is inviolable",
				Rule:   "No governance decision may disable, merge, or expose the two voting personas.",
			},
			check: func(name, val, desc string) bool {
				if containsAny(name, "shadow", "dual_identity") && isDisabling(val) {
					return true
				}
				return containsAny(desc, "disable shadow", "remove shadow", "link identities", "merge identities")
			},
		},
		{
			ConstitutionalArticle: domain.ConstitutionalArticle{
				Number: 2,
				Title:  "No leveraged speculation",
				Rule:   "Stake pools settle one-to-one; leverage, shorting, and margin are prohibited.",
			},
			check: func(name, val, desc string) bool {
				if containsAny(name, "leverage", "short", "margin") && isEnabling(val) {
					return true
				}
				return containsAny(desc, "enable leverage", "allow short", "margin trading")
			},
		},
		{
			ConstitutionalArticle: domain.ConstitutionalArticle{
				Number: 3,
				Title:  "Vote weight integrity",
				Rule:   "Section weighting and timing obfuscation cannot be switched off by vote.",
			},
			check: func(name, val, desc string) bool {
				if containsAny(name, "section_weighting", "timing_obfuscation", "vote_jitter") && isDisabling(val) {
					return true
				}
				return containsAny(desc, "disable section weighting", "disable timing obfuscation")
			},
		},
		{
			ConstitutionalArticle: domain.ConstitutionalArticle{
				Number: 4,
				Title:  "The rollback protocol protects itself",
				Rule:   "The emergency rollback mechanism cannot be weakened or removed by an action it would govern.",
			},
			check: func(name, val, desc string) bool {
				if containsAny(name, "rollback_enabled", "emergency_rollback") && isDisabling(val) {
					return true
				}
				return containsAny(desc, "disable rollback", "remove rollback")
			},
		},
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isDisabling(val string) bool {
	switch val {
	case "false", "0", "off", "disabled", "none":
		return true
	}
	return false
}

func isEnabling(val string) bool {
	switch val {
	case "true", "1", "on", "enabled":
		return true
	}
	return false
}
