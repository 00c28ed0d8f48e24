package predicate

import (
	"encoding/hex"
	"math/big"

	"github.com/tolelom/tmlight/crypto"
	"github.com/tolelom/tmlight/types"
)

// validSigners returns the addresses with a cryptographically valid
// VoteCommit signature in commit, verified against signingSet. Absent and
// nil votes are excluded, as are signatures from addresses not in
// signingSet, signatures for a different block, and signatures that fail
// verification. Only a duplicate signer is reported as an InvalidCommit
// failure.
func validSigners(chainID string, commit types.Commit, signingSet types.ValidatorSet) (map[string]bool, *Failure) {
	signers := make(map[string]bool, len(commit.Signatures))
	seen := make(map[string]bool, len(commit.Signatures))
	signBytes := types.VoteSignBytes(chainID, commit.Height, commit.Round, commit.BlockHash)
	for _, sig := range commit.Signatures {
		if sig.Kind == types.VoteAbsent {
			continue
		}
		if seen[sig.ValidatorAddress] {
			return nil, fail(KindInvalidCommit, "duplicate signer %s in commit", sig.ValidatorAddress)
		}
		seen[sig.ValidatorAddress] = true
		if sig.Kind == types.VoteNil {
			continue
		}
		val, ok := signingSet.ByAddress(sig.ValidatorAddress)
		if !ok {
			continue // not part of the set we're measuring overlap against
		}
		if sig.BlockHash != commit.BlockHash {
			continue
		}
		if err := crypto.Verify(val.PubKey, signBytes, hex.EncodeToString(sig.Signature)); err != nil {
			continue
		}
		signers[sig.ValidatorAddress] = true
	}
	return signers, nil
}

// overlapExceeds reports whether sum/total strictly exceeds
// threshold.Numerator/threshold.Denominator, using exact integer
// arithmetic (sum*denominator > numerator*total) to avoid both overflow
// and rounding error near the boundary.
func overlapExceeds(sum, total uint64, threshold types.TrustThreshold) bool {
	lhs := new(big.Int).Mul(big.NewInt(0).SetUint64(sum), big.NewInt(0).SetUint64(threshold.Denominator))
	rhs := new(big.Int).Mul(big.NewInt(0).SetUint64(threshold.Numerator), big.NewInt(0).SetUint64(total))
	return lhs.Cmp(rhs) > 0
}

// HasSufficientValidatorsOverlap is P10 (the skipping case,
// candidate.height > trusted.height+1): the voting power, measured in
// trusted.next_validators, of validators that also validly signed the
// candidate's commit must strictly exceed threshold * total power of
// trusted.next_validators.
func HasSufficientValidatorsOverlap(chainID string, trusted, candidate *types.LightBlock, threshold types.TrustThreshold) *Failure {
	signers, f := validSigners(chainID, candidate.SignedHeader.Commit, candidate.ValidatorSet)
	if f != nil {
		return f
	}
	total, err := trusted.NextValidatorSet.TotalVotingPower()
	if err != nil {
		return fail(KindInsufficientOverlap, "trusted next validator set: %v", err)
	}
	var overlap uint64
	for _, v := range trusted.NextValidatorSet.Validators {
		if signers[v.Address] {
			overlap += v.Power
		}
	}
	if !overlapExceeds(overlap, total, threshold) {
		return fail(KindInsufficientOverlap,
			"overlap %d/%d does not exceed threshold %d/%d",
			overlap, total, threshold.Numerator, threshold.Denominator)
	}
	return nil
}

// twoThirds is the fixed BFT commit threshold used by P11.
var twoThirds = types.TrustThreshold{Numerator: 2, Denominator: 3}

// HasSufficientSignersOverlap is P11: the voting power, in
// candidate.validators, of validators whose signatures are valid for the
// committed block must strictly exceed 2/3 of candidate.validators' total
// power. This is the standard BFT commit rule, applied unconditionally
// (both adjacent and skipping cases).
func HasSufficientSignersOverlap(chainID string, candidate *types.LightBlock) *Failure {
	signers, f := validSigners(chainID, candidate.SignedHeader.Commit, candidate.ValidatorSet)
	if f != nil {
		return f
	}
	total, err := candidate.ValidatorSet.TotalVotingPower()
	if err != nil {
		return fail(KindInsufficientSignersOverlap, "candidate validator set: %v", err)
	}
	var overlap uint64
	for _, v := range candidate.ValidatorSet.Validators {
		if signers[v.Address] {
			overlap += v.Power
		}
	}
	if !overlapExceeds(overlap, total, twoThirds) {
		return fail(KindInsufficientSignersOverlap,
			"commit power %d/%d does not exceed 2/3", overlap, total)
	}
	return nil
}
