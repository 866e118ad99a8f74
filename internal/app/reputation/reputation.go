// Package reputation provides the trust-score and verified-human lookups
// the governance engine consults before poll creation and voting. Backed
// by the users table in the shared store; unknown users score the neutral
// default of 50 and are not verified.
package reputation

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/janus-network/janus/internal/domain"
)

// DefaultScore is returned for users with no reputation record.
const DefaultScore = 50

// Service answers reputation and identity checks from the users table.
// It satisfies both domain.Reputation and domain.Identity.
type Service struct{}

// NewService creates a reputation service.
func NewService() *Service {
	return &Service{}
}

// Score returns the user's trust score in [0,100], defaulting to 50.
func (s *Service) Score(tx domain.Tx, userID string) (int, error) {
	var score int
	err := tx.QueryRow(`SELECT reputation FROM users WHERE id = ?`, userID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrReputationFailure, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// IsVerifiedHuman reports whether the user passed proof-of-humanity.
func (s *Service) IsVerifiedHuman(tx domain.Tx, userID string) (bool, error) {
	var verified bool
	err := tx.QueryRow(`SELECT verified FROM users WHERE id = ?`, userID).Scan(&verified)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrReputationFailure, err)
	}
	return verified, nil
}
