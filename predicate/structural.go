package predicate

import "github.com/tolelom/tmlight/types"

// ValidatorSetsMatch is P1: the block's validator set must hash to the
// value committed in its own header.
func ValidatorSetsMatch(block *types.LightBlock) *Failure {
	got := block.ValidatorSet.Hash()
	want := block.SignedHeader.Header.ValidatorsHash
	if got != want {
		return fail(KindInvalidValidatorSet,
			"validators_hash mismatch: header wants %s, set hashes to %s", want, got)
	}
	return nil
}

// NextValidatorSetsMatch is P2: same check for the next validator set.
func NextValidatorSetsMatch(block *types.LightBlock) *Failure {
	got := block.NextValidatorSet.Hash()
	want := block.SignedHeader.Header.NextValidatorsHash
	if got != want {
		return fail(KindInvalidNextValidatorSet,
			"next_validators_hash mismatch: header wants %s, set hashes to %s", want, got)
	}
	return nil
}

// HeaderHashMatches is P3: compares a hash taken from a fetched block
// against an expected hash obtained independently. Its caller is the
// trust-anchor check in light.VerifyTrustAnchor; the fork detector compares
// witness headers field by field instead.
func HeaderHashMatches(got, want types.Hash) *Failure {
	if got != want {
		return fail(KindHeaderHashMismatch, "header hash mismatch: got %s want %s", got, want)
	}
	return nil
}

// MatchingValidatorSetHash is P9, the adjacent-height case
// (candidate.height == trusted.height + 1): the candidate's own validator
// set must be exactly the trusted block's *next* validator set.
func MatchingValidatorSetHash(trusted, candidate *types.LightBlock) *Failure {
	got := candidate.SignedHeader.Header.ValidatorsHash
	want := trusted.SignedHeader.Header.NextValidatorsHash
	if got != want {
		return fail(KindInvalidValidatorSet,
			"adjacent header validators_hash %s does not match trusted next_validators_hash %s", got, want)
	}
	return nil
}
