// Package verifier applies the predicates in predicate to decide whether a
// trusted light block can be extended or skipped to a candidate.
package verifier

import (
	"time"

	"github.com/pkg/errors"

	"github.com/tolelom/tmlight/predicate"
	"github.com/tolelom/tmlight/types"
)

// Result is the outcome of a single Verify call. Exactly one of Verified
// or Invalid is meaningful, selected by Ok.
type Result struct {
	Ok          bool
	NewTrusted  *types.LightBlock
	InvalidKind predicate.Kind
	Err         error
}

// Verified builds a successful Result.
func Verified(block *types.LightBlock) Result {
	return Result{Ok: true, NewTrusted: block}
}

// Invalid builds a failed Result.
func Invalid(kind predicate.Kind, err error) Result {
	return Result{Ok: false, InvalidKind: kind, Err: err}
}

// Bisectable reports whether the scheduler may retry this verification at
// an intermediate height.
func (r Result) Bisectable() bool {
	return !r.Ok && r.InvalidKind.Bisectable()
}

// Verifier decides whether a trusted light block can be extended to a
// candidate. It holds no mutable state: two calls with equal inputs
// produce equal outputs.
type Verifier struct{}

// New returns a Verifier. It takes no configuration: every parameter that
// affects the outcome (threshold, trusting period, clock drift, time) is
// passed explicitly to Verify, keeping the verifier itself a pure function
// value rather than an object with hidden state.
func New() *Verifier {
	return &Verifier{}
}

// Verify decides whether candidate extends (or is skippable from) trusted
// under threshold, given trustingPeriod and the current time now.
//
// Predicates run in a fixed order, cheapest and most informative first:
// structural checks, then temporal checks, then commit validity, then
// voting-power overlap.
func (v *Verifier) Verify(
	chainID string,
	trusted, candidate *types.LightBlock,
	threshold types.TrustThreshold,
	trustingPeriod, clockDrift time.Duration,
	now time.Time,
) Result {
	// Structural.
	if f := predicate.ValidatorSetsMatch(candidate); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "candidate validator set"))
	}
	if f := predicate.NextValidatorSetsMatch(candidate); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "candidate next validator set"))
	}

	adjacent := candidate.Height() == trusted.Height()+1
	if adjacent {
		if f := predicate.MatchingValidatorSetHash(trusted, candidate); f != nil {
			return Invalid(f.Kind, errors.Wrap(f, "adjacent verification"))
		}
	}

	// Temporal.
	if f := predicate.NotExpired(trusted, trustingPeriod, now); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "trusted state"))
	}
	if f := predicate.HeaderInTrustingPeriod(candidate, trustingPeriod, clockDrift, now); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "candidate header"))
	}
	if f := predicate.MonotonicBftTime(trusted, candidate); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "bft time"))
	}
	if f := predicate.MonotonicHeight(trusted, candidate); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "height"))
	}

	// Commit validity.
	if f := predicate.ValidCommit(chainID, candidate.SignedHeader.Commit, candidate.ValidatorSet); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "commit"))
	}

	// Voting-power overlap.
	if !adjacent {
		if f := predicate.HasSufficientValidatorsOverlap(chainID, trusted, candidate, threshold); f != nil {
			return Invalid(f.Kind, errors.Wrap(f, "skipping verification"))
		}
	}
	if f := predicate.HasSufficientSignersOverlap(chainID, candidate); f != nil {
		return Invalid(f.Kind, errors.Wrap(f, "commit power"))
	}

	return Verified(candidate)
}
