package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. They are grouped
// by taxonomy: validation, eligibility, constitutional, state, dependency.
// The Is* helpers below drive HTTP status mapping in the API layer.

var (
	// Validation — malformed or out-of-range input, caught before any write.
	ErrInvalidPollType    = errors.New("invalid poll type")
	ErrInvalidOption      = errors.New("invalid vote option")
	ErrInvalidPosition    = errors.New("stake position must be yes or no")
	ErrInvalidParameter   = errors.New("parameter value failed validation")
	ErrUnknownParameter   = errors.New("parameter is not in the registry")
	ErrStakeBelowMinimum  = errors.New("stake amount below minimum")
	ErrTitleRequired      = errors.New("poll title is required")
	ErrInvalidIdentity    = errors.New("identity mode must be true_self or shadow")

	// Eligibility — the caller may not perform this operation.
	ErrInsufficientReputation = errors.New("reputation score below required floor")
	ErrNotVerifiedHuman       = errors.New("verified-human check failed")
	ErrInsufficientBalance    = errors.New("insufficient available balance")
	ErrAlreadyVoted           = errors.New("this identity already voted on this poll")
	ErrAlreadyStaked          = errors.New("this identity already staked on this poll")
	ErrVoteChangeLimit        = errors.New("vote change limit reached")
	ErrSignerIneligible       = errors.New("signer does not meet petition requirements")
	ErrDuplicateSignature     = errors.New("user already signed this petition")
	ErrNotFounder             = errors.New("caller is not the founder")

	// Constitutional — always fatal to poll creation, never downgraded.
	ErrConstitutionalViolation = errors.New("proposal violates a constitutional article")

	// State — operation against the wrong lifecycle state.
	ErrPollNotFound          = errors.New("poll not found")
	ErrPollNotActive         = errors.New("poll is not active")
	ErrVotingClosed          = errors.New("voting window has ended")
	ErrPollNotClosed         = errors.New("poll has not been closed")
	ErrPoolNotFound          = errors.New("stake pool not found")
	ErrPoolNotOpen           = errors.New("stake pool is not accepting stakes")
	ErrPoolAlreadySettled    = errors.New("stake pool already settled")
	ErrVoteNotFound          = errors.New("vote not found")
	ErrStakeNotFound         = errors.New("stake not found")
	ErrActionNotFound        = errors.New("action not found")
	ErrActionNotCompleted    = errors.New("action is not in completed state")
	ErrActionNotDue          = errors.New("action is not due for execution")
	ErrRollbackWindowExpired = errors.New("rollback window has expired")
	ErrFounderTokensExhausted = errors.New("founder rollback tokens exhausted")
	ErrFounderAuthorityExpired = errors.New("founder authority fully decayed")
	ErrParameterFrozen       = errors.New("parameter is frozen")
	ErrParameterNotVoteable  = errors.New("parameter is not voteable")
	ErrPetitionNotFound      = errors.New("petition not found")
	ErrPetitionClosed        = errors.New("petition is no longer open")
	ErrDelegationNotFound    = errors.New("no active delegation")

	// Dependency — an external collaborator failed; the enclosing
	// transaction aborts and the caller may retry.
	ErrLedgerFailure     = errors.New("ledger service failure")
	ErrReputationFailure = errors.New("reputation service failure")
)

var validationErrors = []error{
	ErrInvalidPollType, ErrInvalidOption, ErrInvalidPosition,
	ErrInvalidParameter, ErrUnknownParameter, ErrStakeBelowMinimum,
	ErrTitleRequired, ErrInvalidIdentity,
}

var eligibilityErrors = []error{
	ErrInsufficientReputation, ErrNotVerifiedHuman, ErrInsufficientBalance,
	ErrAlreadyVoted, ErrAlreadyStaked, ErrVoteChangeLimit,
	ErrSignerIneligible, ErrDuplicateSignature, ErrNotFounder,
}

var stateErrors = []error{
	ErrPollNotFound, ErrPollNotActive, ErrVotingClosed, ErrPollNotClosed,
	ErrPoolNotFound, ErrPoolNotOpen, ErrPoolAlreadySettled, ErrVoteNotFound,
	ErrStakeNotFound, ErrActionNotFound, ErrActionNotCompleted,
	ErrActionNotDue, ErrRollbackWindowExpired, ErrFounderTokensExhausted,
	ErrFounderAuthorityExpired, ErrParameterFrozen, ErrParameterNotVoteable,
	ErrPetitionNotFound, ErrPetitionClosed, ErrDelegationNotFound,
}

var dependencyErrors = []error{ErrLedgerFailure, ErrReputationFailure}

func isAny(err error, group []error) bool {
	for _, e := range group {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return isAny(err, validationErrors) }

// IsEligibility reports whether err is an eligibility error.
func IsEligibility(err error) bool { return isAny(err, eligibilityErrors) }

// IsConstitutional reports whether err is a constitutional violation.
func IsConstitutional(err error) bool { return errors.Is(err, ErrConstitutionalViolation) }

// IsState reports whether err is a lifecycle-state error.
func IsState(err error) bool { return isAny(err, stateErrors) }

// IsDependency reports whether err is a retryable external failure.
func IsDependency(err error) bool { return isAny(err, dependencyErrors) }
