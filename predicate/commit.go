package predicate

import (
	"encoding/hex"

	"github.com/tolelom/tmlight/crypto"
	"github.com/tolelom/tmlight/types"
)

// ValidCommit is P4: every signature in the commit is either absent/nil or
// a valid signature, by a validator present in valset, over the canonical
// vote bytes for the commit's block hash; no validator signs twice.
func ValidCommit(chainID string, commit types.Commit, valset types.ValidatorSet) *Failure {
	seen := make(map[string]bool, len(commit.Signatures))
	for _, sig := range commit.Signatures {
		if sig.Kind == types.VoteAbsent {
			continue
		}
		if seen[sig.ValidatorAddress] {
			return fail(KindInvalidCommit, "duplicate signer %s in commit", sig.ValidatorAddress)
		}
		seen[sig.ValidatorAddress] = true

		if sig.Kind == types.VoteNil {
			continue
		}

		val, ok := valset.ByAddress(sig.ValidatorAddress)
		if !ok {
			return fail(KindInvalidCommit, "commit signed by unknown validator %s", sig.ValidatorAddress)
		}
		if sig.BlockHash != commit.BlockHash {
			return fail(KindInvalidCommit, "signature from %s is for a different block (%s != %s)",
				sig.ValidatorAddress, sig.BlockHash, commit.BlockHash)
		}
		signBytes := types.VoteSignBytes(chainID, commit.Height, commit.Round, commit.BlockHash)
		if err := crypto.Verify(val.PubKey, signBytes, hex.EncodeToString(sig.Signature)); err != nil {
			return fail(KindInvalidCommit, "signature verification failed for %s: %v", sig.ValidatorAddress, err)
		}
	}
	return nil
}
