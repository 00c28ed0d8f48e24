package verifier_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/tolelom/tmlight/crypto"
	"github.com/tolelom/tmlight/predicate"
	"github.com/tolelom/tmlight/types"
	"github.com/tolelom/tmlight/verifier"
)

const chainID = "test-chain"

func genValidatorSet(t *testing.T, n int) (types.ValidatorSet, []crypto.PrivateKey) {
	t.Helper()
	var vs types.ValidatorSet
	var privs []crypto.PrivateKey
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		privs = append(privs, priv)
		vs.Validators = append(vs.Validators, types.Validator{Address: pub.Address(), PubKey: pub, Power: 10})
	}
	return vs, privs
}

func buildBlock(t *testing.T, height types.Height, vs, nextVS types.ValidatorSet, privs []crypto.PrivateKey, signers int, when time.Time) *types.LightBlock {
	t.Helper()
	hdr := types.Header{
		ChainID:            chainID,
		Height:             height,
		Time:               when,
		ValidatorsHash:     vs.Hash(),
		NextValidatorsHash: nextVS.Hash(),
	}
	blockHash := types.HashBytes([]byte(hdr.ChainID + when.String()))
	signBytes := types.VoteSignBytes(chainID, height, 0, blockHash)
	commit := types.Commit{Height: height, BlockHash: blockHash}
	for i, v := range vs.Validators {
		if i >= signers {
			commit.Signatures = append(commit.Signatures, types.CommitSig{Kind: types.VoteAbsent, ValidatorAddress: v.Address})
			continue
		}
		sigHex := crypto.Sign(privs[i], signBytes)
		sig, _ := hex.DecodeString(sigHex)
		commit.Signatures = append(commit.Signatures, types.CommitSig{
			Kind: types.VoteCommit, ValidatorAddress: v.Address, BlockHash: blockHash, Signature: sig,
		})
	}
	return &types.LightBlock{
		SignedHeader:     types.SignedHeader{Header: hdr, Commit: commit},
		ValidatorSet:     vs,
		NextValidatorSet: nextVS,
	}
}

func TestVerifyAdjacentSucceeds(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-time.Hour))
	candidate := buildBlock(t, 2, vs, vs, privs, 4, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if !result.Ok {
		t.Fatalf("expected adjacent verification to succeed, got %v (%s)", result.Err, result.InvalidKind)
	}
	if result.NewTrusted.Height() != 2 {
		t.Fatalf("got new trusted height %d, want 2", result.NewTrusted.Height())
	}
}

func TestVerifyAdjacentFailsOnMismatchedValidatorSet(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	otherVS, otherPrivs := genValidatorSet(t, 3)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-time.Hour))
	candidate := buildBlock(t, 2, otherVS, otherVS, otherPrivs, 3, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if result.Ok {
		t.Fatal("expected failure on mismatched adjacent validator set")
	}
	if result.Bisectable() {
		t.Fatalf("adjacent failure of kind %s should not be bisectable", result.InvalidKind)
	}
}

func TestVerifySkippingSucceedsWithFullOverlap(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-time.Hour))
	candidate := buildBlock(t, 10, vs, vs, privs, 4, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if !result.Ok {
		t.Fatalf("expected skip verification to succeed, got %v (%s)", result.Err, result.InvalidKind)
	}
}

func TestVerifySkippingFailsWithInsufficientOverlapIsBisectable(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-time.Hour))
	// Only one of four validators signs: 10/40 power, below the 1/3 threshold.
	candidate := buildBlock(t, 10, vs, vs, privs, 1, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if result.Ok {
		t.Fatal("expected insufficient overlap to fail")
	}
	if !result.Bisectable() {
		t.Fatalf("expected insufficient overlap to be bisectable, got kind %s", result.InvalidKind)
	}
	if result.InvalidKind != predicate.KindInsufficientOverlap {
		t.Fatalf("got kind %s", result.InvalidKind)
	}
}

func TestVerifyFailsWhenCandidateInsufficientCommitPower(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-time.Hour))
	candidate := buildBlock(t, 2, vs, vs, privs, 2, now.Add(-time.Minute)) // 2/4 power, not > 2/3

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if result.Ok {
		t.Fatal("expected failure on insufficient commit power")
	}
	if result.InvalidKind != predicate.KindInsufficientSignersOverlap {
		t.Fatalf("got kind %s", result.InvalidKind)
	}
}

func TestVerifyFailsWhenTrustedExpired(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 1, vs, vs, privs, 4, now.Add(-30*24*time.Hour))
	candidate := buildBlock(t, 2, vs, vs, privs, 4, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if result.Ok {
		t.Fatal("expected failure on expired trusted state")
	}
	if result.InvalidKind != predicate.KindTrustedStateExpired {
		t.Fatalf("got kind %s", result.InvalidKind)
	}
}

func TestVerifyFailsOnNonMonotonicHeight(t *testing.T) {
	vs, privs := genValidatorSet(t, 4)
	now := time.Now()
	trusted := buildBlock(t, 5, vs, vs, privs, 4, now.Add(-time.Hour))
	candidate := buildBlock(t, 5, vs, vs, privs, 4, now.Add(-time.Minute))

	v := verifier.New()
	result := v.Verify(chainID, trusted, candidate, types.DefaultTrustThreshold, 14*24*time.Hour, 10*time.Second, now)
	if result.Ok {
		t.Fatal("expected failure on non-monotonic height")
	}
	if result.InvalidKind != predicate.KindNonMonotonicHeight {
		t.Fatalf("got kind %s", result.InvalidKind)
	}
}
